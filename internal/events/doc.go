// Package events broadcasts queue lifecycle events to every connected
// subscriber.
//
// Delivery is fire-and-forget: each subscriber has a bounded channel, a full
// channel drops the event, and nothing is replayed to subscribers that join
// later. Subscriptions may carry a CEL Filter such as
//
//	queue == "shopping-lists" && event in ["processed", "error"]
package events
