package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/syncq/pkg/id"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

const defaultBuffer = 64

// Options configures a Broadcaster.
type Options struct {
	// Buffer is the default per-subscriber channel capacity.
	Buffer int
	Logger logpkg.Logger
	// Clock stamps AtMs and seeds event ids. Defaults to time.Now.
	Clock func() time.Time
	// OnDrop is called for every event dropped for a full subscriber.
	OnDrop func(Kind)
}

// Broadcaster fans events out to all current subscribers without blocking.
// Late subscribers see nothing that was sent before they joined.
type Broadcaster struct {
	opts   Options
	logger logpkg.Logger
	ids    *id.Generator

	mu   sync.RWMutex
	subs map[uint64]*Subscription
	next uint64
}

// New returns a Broadcaster with no subscribers.
func New(opts Options) *Broadcaster {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Broadcaster{
		opts:   opts,
		logger: logger.WithComponent("events"),
		ids:    id.NewGenerator(opts.Clock),
		subs:   make(map[uint64]*Subscription),
	}
}

// SubscribeOptions tunes one subscription.
type SubscribeOptions struct {
	Buffer int
	Filter *Filter
}

// Subscription receives events on C until Close.
type Subscription struct {
	id      uint64
	ch      chan Event
	filter  *Filter
	b       *Broadcaster
	dropped atomic.Uint64
	once    sync.Once
}

// C is closed after Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped counts events lost because C was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s.id)
		s.b.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe(opts SubscribeOptions) *Subscription {
	size := opts.Buffer
	if size <= 0 {
		size = b.opts.Buffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	s := &Subscription{id: b.next, ch: make(chan Event, size), filter: opts.Filter, b: b}
	b.subs[s.id] = s
	return s
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Broadcast stamps ev with an id and time when unset and delivers it to every
// matching subscriber. It never blocks. The stamped event is returned.
func (b *Broadcaster) Broadcast(ev Event) Event {
	if ev.ID == "" {
		ev.ID = b.ids.Next().String()
	}
	if ev.AtMs == 0 {
		ev.AtMs = b.opts.Clock().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.logger.Debug("event dropped for slow subscriber",
				logpkg.Str("event", string(ev.Event)),
				logpkg.F("subscriber", s.id))
			if b.opts.OnDrop != nil {
				b.opts.OnDrop(ev.Event)
			}
		}
	}
	return ev
}
