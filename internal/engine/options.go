package engine

import (
	"context"
	"regexp"
	"time"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/metrics"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// FailurePolicy decides what a run does after a processor failure.
type FailurePolicy int

const (
	// Halt ends the run on the first failure.
	Halt FailurePolicy = iota
	// Isolate skips the failing queue name for the rest of the run and keeps
	// draining the others.
	Isolate
)

// ParseFailurePolicy maps "halt" and "isolate"; anything else is Halt.
func ParseFailurePolicy(s string) FailurePolicy {
	if s == "isolate" {
		return Isolate
	}
	return Halt
}

func (p FailurePolicy) String() string {
	if p == Isolate {
		return "isolate"
	}
	return "halt"
}

// Store is the durable entry table.
type Store interface {
	Put(ctx context.Context, e queue.Entry) error
	Get(ctx context.Context, id string) (queue.Entry, error)
	GetAll(ctx context.Context) ([]queue.Entry, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Broadcaster fans out lifecycle events.
type Broadcaster interface {
	Broadcast(events.Event) events.Event
}

// Coalescer receives a touch per enqueue and cancellations on purge/clear.
type Coalescer interface {
	Touch(queueName, resourceKey string)
	Cancel(id string)
	CancelAll()
}

// Options wires an Engine. Store, Registry and Broadcaster are required.
type Options struct {
	Store       Store
	Registry    *processor.Registry
	Broadcaster Broadcaster
	Coalescer   Coalescer
	Logger      logpkg.Logger
	Metrics     *metrics.Metrics

	// Window is added to the enqueue time to form CoalesceUntil. Zero
	// selects 300ms.
	Window        time.Duration
	FailurePolicy FailurePolicy
	// QueueNames, when set, must match every enqueued queue name.
	QueueNames *regexp.Regexp
	Clock      func() time.Time
}

const defaultWindow = 300 * time.Millisecond

type noopCoalescer struct{}

func (noopCoalescer) Touch(string, string) {}
func (noopCoalescer) Cancel(string)        {}
func (noopCoalescer) CancelAll()           {}
