package projector

import (
	"context"
	"sync"
	"time"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/queue"
)

// State is the sync status of one resource as shown to a user.
type State string

const (
	Idle       State = "idle"
	Coalescing State = "coalescing"
	Pending    State = "pending"
	Processing State = "processing"
	Error      State = "error"
	Drained    State = "drained"
)

// Source is what Watch needs from a client connection.
type Source interface {
	Status(ctx context.Context, resourceKey string) (queue.Snapshot, error)
	Subscribe(fn func(events.Event)) (unsubscribe func())
}

// Projector derives the State of one (queueName, resourceKey) pair from a
// status snapshot followed by the event stream.
type Projector struct {
	queueName   string
	resourceKey string

	mu       sync.Mutex
	state    State
	onChange func(State)
}

// New starts in Idle. onChange, when non-nil, is called after every
// transition that changes the state.
func New(queueName, resourceKey string, onChange func(State)) *Projector {
	return &Projector{queueName: queueName, resourceKey: resourceKey, state: Idle, onChange: onChange}
}

// State returns the current state.
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Seed sets the state from a status snapshot taken at now.
func (p *Projector) Seed(snap queue.Snapshot, now time.Time) {
	p.set(p.fromSnapshot(snap, now.UnixMilli()))
}

func (p *Projector) fromSnapshot(snap queue.Snapshot, nowMs int64) State {
	if snap.Processing {
		return Processing
	}
	id := queue.MakeID(p.queueName, p.resourceKey)
	for _, it := range snap.Items {
		if it.ID != id {
			continue
		}
		switch {
		case it.Status == queue.StatusError:
			return Error
		case it.CoalesceUntilMs > nowMs:
			return Coalescing
		default:
			return Pending
		}
	}
	return Idle
}

// Apply folds one event into the state. Events naming a different queue or
// resource are ignored; run-level events apply to every resource.
func (p *Projector) Apply(ev events.Event) {
	if ev.QueueName != "" && ev.QueueName != p.queueName {
		return
	}
	if ev.ResourceKey != "" && ev.ResourceKey != p.resourceKey {
		return
	}
	switch ev.Event {
	case events.KindReady, events.KindProcessed:
		p.set(Pending)
	case events.KindProcessingStart, events.KindProcessing:
		p.set(Processing)
	case events.KindError:
		p.set(Error)
	case events.KindDrained:
		p.set(Drained)
	case events.KindStopped:
		p.set(Idle)
	}
}

func (p *Projector) set(s State) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	fn := p.onChange
	p.mu.Unlock()
	if changed && fn != nil {
		fn(s)
	}
}

// Watch seeds from one status query, then applies events until ctx ends.
// Events that arrive while the status query is in flight are applied after
// seeding.
func (p *Projector) Watch(ctx context.Context, src Source) error {
	buffered := make(chan events.Event, 256)
	unsubscribe := src.Subscribe(func(ev events.Event) {
		select {
		case buffered <- ev:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	snap, err := src.Status(ctx, p.resourceKey)
	if err != nil {
		return err
	}
	p.Seed(snap, time.Now())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-buffered:
			p.Apply(ev)
		}
	}
}
