// Package runtime wires the queue store, event broadcaster, coalescer,
// processor registry, engine and host into one process.
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
//	go rt.Serve(ctx)
//	p := client.New(rt.Host())
//	_, _ = p.Enqueue(ctx, "lists", "L1", json.RawMessage(`{"items":[]}`))
package runtime
