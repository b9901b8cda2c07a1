package scheduler

import (
	"sync"
	"time"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/queue"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// DefaultWindow is the quiet period after the last touch before "ready".
const DefaultWindow = 300 * time.Millisecond

// Broadcaster is the subset of events.Broadcaster the coalescer needs.
type Broadcaster interface {
	Broadcast(events.Event) events.Event
}

// Coalescer keeps one timer per entry id. Each Touch restarts the timer; when
// it fires a "ready" event is broadcast. The signal is advisory: the engine
// decides readiness from the stored entry, not from these timers.
type Coalescer struct {
	window time.Duration
	bc     Broadcaster
	logger logpkg.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New returns a coalescer. A non-positive window selects DefaultWindow.
func New(window time.Duration, bc Broadcaster, logger logpkg.Logger) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Coalescer{
		window: window,
		bc:     bc,
		logger: logger.WithComponent("scheduler"),
		timers: make(map[string]*time.Timer),
	}
}

// Window returns the coalescing window.
func (c *Coalescer) Window() time.Duration { return c.window }

// Touch cancels any timer for the entry and arms a fresh one.
func (c *Coalescer) Touch(queueName, resourceKey string) {
	id := queue.MakeID(queueName, resourceKey)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		// a later Touch or Cancel replaced or removed this timer
		if c.timers[id] != t {
			c.mu.Unlock()
			return
		}
		delete(c.timers, id)
		c.mu.Unlock()

		c.logger.Debug("coalesce window elapsed", logpkg.Queue(queueName), logpkg.Resource(resourceKey))
		c.bc.Broadcast(events.ForEntry(events.KindReady, queueName, resourceKey))
	})
	c.timers[id] = t
}

// Cancel drops the timer for id without broadcasting.
func (c *Coalescer) Cancel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

// CancelAll drops every timer.
func (c *Coalescer) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// Pending returns the number of armed timers.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels all timers; later touches are ignored.
func (c *Coalescer) Stop() {
	c.CancelAll()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}
