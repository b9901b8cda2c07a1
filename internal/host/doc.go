// Package host runs the background context that owns the queue engine.
//
// Clients never call the engine directly: they send Commands on the host's
// inbox and receive correlated Replies on a channel of their own, while
// lifecycle events reach them through the host's broadcaster. START replies
// ok as soon as it has been handed to the engine, even when the engine
// refused to begin (no token, or a run already active); Reply.Started tells
// the two apart.
package host
