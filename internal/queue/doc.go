// Package queue defines the persisted queue entry, its status summaries, the
// on-disk record format and the storage keyspace.
//
// An entry is identified by "queueName::resourceKey". Re-enqueueing the same
// pair overwrites the entry rather than appending a new one.
package queue
