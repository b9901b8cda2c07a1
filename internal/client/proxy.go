package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/host"
	"github.com/rzbill/syncq/internal/queue"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// ErrClosed is returned by calls on a closed proxy.
var ErrClosed = errors.New("client: proxy closed")

// Proxy is one client's connection to a host: an outbound command path with
// reply correlation and an inbound event subscription shared by all of the
// client's listeners.
type Proxy struct {
	h      *host.Host
	logger logpkg.Logger

	replies chan host.Reply
	quit    chan struct{}
	once    sync.Once

	mu        sync.Mutex
	pending   map[string]chan host.Reply
	listeners map[uint64]func(events.Event)
	nextID    uint64
	sub       *events.Subscription
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the proxy logger.
func WithLogger(l logpkg.Logger) Option {
	return func(p *Proxy) { p.logger = l.WithComponent("client") }
}

// New connects a proxy to h.
func New(h *host.Host, opts ...Option) *Proxy {
	p := &Proxy{
		h:         h,
		logger:    logpkg.NewNopLogger(),
		replies:   make(chan host.Reply, 64),
		quit:      make(chan struct{}),
		pending:   make(map[string]chan host.Reply),
		listeners: make(map[uint64]func(events.Event)),
	}
	for _, o := range opts {
		o(p)
	}
	go p.dispatchReplies()
	return p
}

var (
	sharedMu sync.Mutex
	shared   = map[*host.Host]*Proxy{}
)

// Shared returns the process-wide proxy for h, creating it on first use or
// after the previous one was closed.
func Shared(h *host.Host) *Proxy {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if p, ok := shared[h]; ok && !p.closed() {
		return p
	}
	p := New(h)
	shared[h] = p
	return p
}

func (p *Proxy) closed() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

func (p *Proxy) dispatchReplies() {
	for {
		select {
		case <-p.quit:
			return
		case r := <-p.replies:
			p.mu.Lock()
			ch, ok := p.pending[r.ReplyID]
			delete(p.pending, r.ReplyID)
			p.mu.Unlock()
			if !ok {
				p.logger.Debug("reply without pending request", logpkg.Str("reply_id", r.ReplyID))
				continue
			}
			ch <- r
		}
	}
}

// call sends cmd and waits for its correlated reply.
func (p *Proxy) call(ctx context.Context, cmd host.Command) (host.Reply, error) {
	if p.closed() {
		return host.Reply{}, ErrClosed
	}
	cmd.ReplyID = uuid.NewString()
	cmd.Reply = p.replies
	wait := make(chan host.Reply, 1)

	p.mu.Lock()
	p.pending[cmd.ReplyID] = wait
	p.mu.Unlock()
	forget := func() {
		p.mu.Lock()
		delete(p.pending, cmd.ReplyID)
		p.mu.Unlock()
	}

	if err := p.h.Submit(ctx, cmd); err != nil {
		forget()
		return host.Reply{}, err
	}
	select {
	case r := <-wait:
		if !r.OK {
			if r.Err != nil {
				return r, r.Err
			}
			return r, errors.New(r.Error)
		}
		return r, nil
	case <-ctx.Done():
		forget()
		return host.Reply{}, ctx.Err()
	case <-p.h.Closing():
		forget()
		return host.Reply{}, host.ErrClosed
	case <-p.quit:
		return host.Reply{}, ErrClosed
	}
}

// Enqueue upserts an entry and returns its summary.
func (p *Proxy) Enqueue(ctx context.Context, queueName, resourceKey string, payload json.RawMessage) (queue.Summary, error) {
	r, err := p.call(ctx, host.Command{Kind: host.KindEnqueue, QueueName: queueName, ResourceKey: resourceKey, Payload: payload})
	if err != nil {
		return queue.Summary{}, err
	}
	if r.Entry == nil {
		return queue.Summary{}, nil
	}
	return *r.Entry, nil
}

// Status returns a snapshot, filtered by resource key when non-empty.
func (p *Proxy) Status(ctx context.Context, resourceKey string) (queue.Snapshot, error) {
	r, err := p.call(ctx, host.Command{Kind: host.KindStatus, ResourceKey: resourceKey})
	if err != nil {
		return queue.Snapshot{}, err
	}
	if r.Status == nil {
		return queue.Snapshot{Items: []queue.Summary{}}, nil
	}
	return *r.Status, nil
}

// Start supplies token and asks the engine to begin a run. started is false
// when the engine refused (no token or already running).
func (p *Proxy) Start(ctx context.Context, token string) (started bool, err error) {
	r, err := p.call(ctx, host.Command{Kind: host.KindStart, Token: token})
	return r.Started, err
}

// Stop asks the active run to end after the current entry.
func (p *Proxy) Stop(ctx context.Context) error {
	_, err := p.call(ctx, host.Command{Kind: host.KindStop})
	return err
}

func (p *Proxy) PurgeResource(ctx context.Context, queueName, resourceKey string) error {
	_, err := p.call(ctx, host.Command{Kind: host.KindPurgeResource, QueueName: queueName, ResourceKey: resourceKey})
	return err
}

func (p *Proxy) ClearAll(ctx context.Context) error {
	_, err := p.call(ctx, host.Command{Kind: host.KindClearAll})
	return err
}

// Subscribe registers fn for every broadcast event. The returned function
// detaches fn and nothing else.
func (p *Proxy) Subscribe(fn func(events.Event)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed() {
		return func() {}
	}
	if p.sub == nil {
		p.sub = p.h.Events().Subscribe(events.SubscribeOptions{})
		go p.fanOut(p.sub)
	}
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Proxy) fanOut(sub *events.Subscription) {
	for ev := range sub.C() {
		p.mu.Lock()
		fns := make([]func(events.Event), 0, len(p.listeners))
		for _, fn := range p.listeners {
			fns = append(fns, fn)
		}
		p.mu.Unlock()
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Close detaches all listeners and fails pending calls with ErrClosed.
func (p *Proxy) Close() {
	p.once.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.listeners = map[uint64]func(events.Event){}
		p.pending = map[string]chan host.Reply{}
		sub := p.sub
		p.sub = nil
		p.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
	})
}
