package processor

import (
	"context"
	"sort"
	"sync"

	"github.com/rzbill/syncq/internal/queue"
)

// Context carries per-run data handed to a processor.
type Context struct {
	// Token is the credential supplied to the run that invoked the processor.
	Token string
}

// Processor delivers one entry to its destination. It reports ok=true only on
// confirmed success; returning an error or panicking counts as failure.
type Processor interface {
	Process(ctx context.Context, entry queue.Entry, pc Context) (bool, error)
}

// Func adapts a function to Processor.
type Func func(ctx context.Context, entry queue.Entry, pc Context) (bool, error)

func (f Func) Process(ctx context.Context, entry queue.Entry, pc Context) (bool, error) {
	return f(ctx, entry, pc)
}

// Registry maps queue names to processors. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Processor)}
}

// Register binds p to queueName, replacing any earlier registration.
// A nil p removes the binding.
func (r *Registry) Register(queueName string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		delete(r.procs, queueName)
		return
	}
	r.procs[queueName] = p
}

func (r *Registry) Lookup(queueName string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[queueName]
	return p, ok
}

// Names returns the registered queue names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.procs))
	for n := range r.procs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
