// Package client provides the per-client Proxy through which producers and
// UIs talk to the host.
//
//	p := client.Shared(h)
//	unsubscribe := p.Subscribe(func(ev events.Event) { ... })
//	defer unsubscribe()
//	_, _ = p.Enqueue(ctx, "shopping-lists", "L1", payload)
//	_, _ = p.Start(ctx, token)
package client
