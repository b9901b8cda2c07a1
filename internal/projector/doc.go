// Package projector turns the queue's event stream into a per-resource sync
// state for display.
//
//	idle -> coalescing/pending -> processing -> error | drained
//
// The processing state is run-wide: while any entry is being delivered every
// watched resource reports processing.
package projector
