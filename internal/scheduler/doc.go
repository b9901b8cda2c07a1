// Package scheduler debounces enqueue bursts into a single advisory "ready"
// event per entry.
package scheduler
