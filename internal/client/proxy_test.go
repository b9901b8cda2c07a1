package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/syncq/internal/engine"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/host"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
	"github.com/rzbill/syncq/internal/queuestore"
	pebblestore "github.com/rzbill/syncq/internal/storage/pebble"
)

func newHost(t *testing.T) (*host.Host, context.CancelFunc) {
	t.Helper()
	store := queuestore.New(queuestore.Options{DB: pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever}})
	t.Cleanup(func() { _ = store.Close() })
	bc := events.New(events.Options{})
	reg := processor.NewRegistry()
	reg.Register("lists", processor.Func(func(context.Context, queue.Entry, processor.Context) (bool, error) { return true, nil }))
	eng := engine.New(engine.Options{Store: store, Registry: reg, Broadcaster: bc, Window: time.Millisecond})
	h := host.New(host.Options{Engine: eng, Broadcaster: bc})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() { _ = h.Serve(ctx); close(served) }()
	t.Cleanup(func() { cancel(); <-served })
	return h, cancel
}

type eventLog struct {
	mu  sync.Mutex
	evs []events.Event
}

func (l *eventLog) add(ev events.Event) { l.mu.Lock(); l.evs = append(l.evs, ev); l.mu.Unlock() }
func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, len(l.evs))
	for i, ev := range l.evs {
		out[i] = ev.Event
	}
	return out
}

func TestProxyCommands(t *testing.T) {
	h, _ := newHost(t)
	p := New(h)
	defer p.Close()
	ctx := context.Background()

	sum, err := p.Enqueue(ctx, "lists", "L1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "lists::L1", sum.ID)

	_, err = p.Enqueue(ctx, "lists", "L2", nil)
	require.NoError(t, err)

	snap, err := p.Status(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.False(t, snap.Processing)

	require.NoError(t, p.PurgeResource(ctx, "lists", "L1"))
	snap, err = p.Status(ctx, "")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "lists::L2", snap.Items[0].ID)

	require.NoError(t, p.ClearAll(ctx))
	snap, err = p.Status(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)

	require.NoError(t, p.Stop(ctx))

	_, err = p.Enqueue(ctx, "", "x", nil)
	assert.ErrorIs(t, err, engine.ErrInvalidArgument)
}

func TestConcurrentCallsGetTheirOwnReplies(t *testing.T) {
	h, _ := newHost(t)
	p := New(h)
	defer p.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%02d", i)
			sum, err := p.Enqueue(context.Background(), "lists", key, nil)
			if err != nil {
				errs <- err
				return
			}
			if sum.ResourceKey != key {
				errs <- fmt.Errorf("reply for %s carried %s", key, sum.ResourceKey)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStartAndSubscribe(t *testing.T) {
	h, _ := newHost(t)
	p := New(h)
	defer p.Close()
	ctx := context.Background()

	started, err := p.Start(ctx, "")
	require.NoError(t, err)
	assert.False(t, started, "no token: refused but still ok")

	all := &eventLog{}
	detached := &eventLog{}
	unsubscribe := p.Subscribe(all.add)
	defer unsubscribe()
	p.Subscribe(detached.add)()

	_, err = p.Enqueue(ctx, "lists", "L1", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	started, err = p.Start(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, started)

	require.Eventually(t, func() bool {
		k := all.kinds()
		return len(k) > 0 && k[len(k)-1] == events.KindDrained
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, detached.kinds())
	assert.Contains(t, all.kinds(), events.KindProcessed)
}

func TestUnsubscribeLeavesOtherListenersAndEngine(t *testing.T) {
	h, _ := newHost(t)
	p1 := New(h)
	p2 := New(h)
	defer p1.Close()
	defer p2.Close()

	a, b := &eventLog{}, &eventLog{}
	unsubA := p1.Subscribe(a.add)
	p2.Subscribe(b.add)
	unsubA()
	unsubA()

	_, err := p1.Start(context.Background(), "tok")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(b.kinds()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Kind{events.KindProcessingStart, events.KindDrained}, b.kinds())
	assert.Empty(t, a.kinds())
}

func TestSharedAndClose(t *testing.T) {
	h, _ := newHost(t)
	s1 := Shared(h)
	assert.Same(t, s1, Shared(h))

	s1.Close()
	s1.Close()
	_, err := s1.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotNil(t, s1.Subscribe(func(events.Event) {}))

	s2 := Shared(h)
	assert.NotSame(t, s1, s2)
	defer s2.Close()
	_, err = s2.Status(context.Background(), "")
	assert.NoError(t, err)
}

func TestHostShutdownFailsCalls(t *testing.T) {
	h, cancel := newHost(t)
	p := New(h)
	defer p.Close()
	cancel()
	<-h.Done()
	_, err := p.Status(context.Background(), "")
	assert.ErrorIs(t, err, host.ErrClosed)
}
