// Package metrics exposes syncq's Prometheus collectors: enqueue and
// delivery counters, run outcomes, dropped events, processor latency and
// Pebble storage latency.
package metrics
