// Package serverrun is the shared entrypoint the CLI uses to run the sync
// queue host behind its HTTP gateway.
//
// Example:
//
//	cfg, _ := serverrun.LoadConfig("syncq.yaml")
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
