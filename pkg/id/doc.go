// Package id generates event identifiers of the form "<unix-ms>-<seq>".
//
// IDs from one Generator are strictly increasing: a clock that moves backwards
// is pinned to the last millisecond seen and the sequence keeps counting.
// The string form is what the HTTP gateway sends as the SSE "id:" field, and
// Parse accepts it back from a Last-Event-ID header.
package id
