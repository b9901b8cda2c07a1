package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/syncq/internal/events"
)

type recorder struct {
	mu  sync.Mutex
	got []events.Event
	at  []time.Time
}

func (r *recorder) Broadcast(ev events.Event) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	r.at = append(r.at, time.Now())
	return ev
}

func (r *recorder) events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.got...)
}

const window = 40 * time.Millisecond

func TestTouchFiresReadyOnceAfterWindow(t *testing.T) {
	rec := &recorder{}
	c := New(window, rec, nil)
	defer c.Stop()

	c.Touch("lists", "L1")
	assert.Equal(t, 1, c.Pending())

	require.Eventually(t, func() bool { return len(rec.events()) == 1 }, time.Second, 5*time.Millisecond)
	ev := rec.events()[0]
	assert.Equal(t, events.KindReady, ev.Event)
	assert.Equal(t, "lists", ev.QueueName)
	assert.Equal(t, "L1", ev.ResourceKey)
	assert.Equal(t, 0, c.Pending())

	time.Sleep(2 * window)
	assert.Len(t, rec.events(), 1)
}

func TestRepeatedTouchResetsTimer(t *testing.T) {
	rec := &recorder{}
	c := New(window, rec, nil)
	defer c.Stop()

	start := time.Now()
	for i := 0; i < 4; i++ {
		c.Touch("lists", "L1")
		time.Sleep(window / 2)
	}

	require.Eventually(t, func() bool { return len(rec.events()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * window)
	require.Len(t, rec.events(), 1)

	rec.mu.Lock()
	firedAt := rec.at[0]
	rec.mu.Unlock()
	assert.True(t, firedAt.Sub(start) >= 2*window, "fired before the last touch's window elapsed")
}

func TestIndependentResources(t *testing.T) {
	rec := &recorder{}
	c := New(window, rec, nil)
	defer c.Stop()

	c.Touch("lists", "A")
	c.Touch("lists", "B")
	c.Touch("other", "A")
	assert.Equal(t, 3, c.Pending())
	require.Eventually(t, func() bool { return len(rec.events()) == 3 }, time.Second, 5*time.Millisecond)
}

func TestCancelSuppressesReady(t *testing.T) {
	rec := &recorder{}
	c := New(window, rec, nil)
	defer c.Stop()

	c.Touch("lists", "A")
	c.Touch("lists", "B")
	c.Cancel("lists::A")
	c.Cancel("lists::missing")

	require.Eventually(t, func() bool { return len(rec.events()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * window)
	evs := rec.events()
	require.Len(t, evs, 1)
	assert.Equal(t, "B", evs[0].ResourceKey)
}

func TestStopCancelsAndIgnoresLaterTouches(t *testing.T) {
	rec := &recorder{}
	c := New(window, rec, nil)

	c.Touch("lists", "A")
	c.Stop()
	c.Touch("lists", "B")
	assert.Equal(t, 0, c.Pending())

	time.Sleep(3 * window)
	assert.Empty(t, rec.events())
}

func TestDefaultWindow(t *testing.T) {
	c := New(0, &recorder{}, nil)
	assert.Equal(t, DefaultWindow, c.Window())
}
