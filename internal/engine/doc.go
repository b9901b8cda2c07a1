// Package engine implements the single-flight drain loop over the durable
// queue.
//
// A run starts only when a token has been supplied and no other run is
// active. Each iteration reads every entry, picks the ready entry (pending,
// coalescing window elapsed) with the most recent update, marks it
// processing and hands it to the processor registered for its queue name.
// Success deletes the entry; failure marks it error and, under the default
// Halt policy, ends the run. Whatever the exit path, the token is cleared and
// the run ends with "drained" when nothing pending remains, otherwise
// "stopped".
package engine
