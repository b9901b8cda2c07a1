// Package httpserver is the REST gateway for the sync queue: JSON command
// endpoints, an SSE event stream with CEL filters, health and Prometheus
// metrics.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	go rt.Serve(ctx)
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, "127.0.0.1:8787")
package httpserver
