// Package client provides the `syncq queue` command-line client.
//
// The commands talk to the HTTP gateway of a running syncq server. The base
// URL comes from the embedding application via a BaseURLFunc; the standalone
// binary reads SYNCQ_HTTP and defaults to http://127.0.0.1:8787.
//
// Usage
//
//	syncq queue enqueue --queue lists --key L1 --data '{"items":["milk"]}'
//	syncq queue enqueue --queue lists --key L1 --data @list.json
//	syncq queue status --key L1
//	syncq queue start --token "$TOKEN"
//	syncq queue stop
//	syncq queue purge --queue lists --key L1
//	syncq queue clear --confirm
//	syncq queue processors
//
//	# Tail events; the filter runs server-side
//	syncq queue watch --filter 'event == "error"'
//	# Follow one resource's sync state
//	syncq queue watch --queue lists --key L1
package client
