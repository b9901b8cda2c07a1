// Package queuestore is the durable table of queue entries, keyed by
// composite id, backed by Pebble.
//
// Every mutation is a single Pebble batch, so a reader never observes a
// partial write. All failures to open, read or commit are returned as
// *StorageError and match errors.Is(err, ErrStorageFailure).
package queuestore
