// Package processor defines the delivery contract used by the queue engine
// and the registry that maps queue names to implementations.
//
//	reg := processor.NewRegistry()
//	reg.Register("shopping-lists", remote.New(remote.Options{...}))
//	reg.Register("audit", processor.Func(func(ctx context.Context, e queue.Entry, pc processor.Context) (bool, error) {
//	    return true, nil
//	}))
package processor
