package host

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/syncq/internal/engine"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
	"github.com/rzbill/syncq/internal/queuestore"
	pebblestore "github.com/rzbill/syncq/internal/storage/pebble"
)

type stopCounter struct{ n atomic.Int32 }

func (s *stopCounter) Stop() { s.n.Add(1) }

func newTestHost(t *testing.T) (*Host, context.CancelFunc, *stopCounter) {
	t.Helper()
	return newTestHostWith(t, processor.Func(func(context.Context, queue.Entry, processor.Context) (bool, error) { return true, nil }))
}

func newTestHostWith(t *testing.T, p processor.Processor) (*Host, context.CancelFunc, *stopCounter) {
	t.Helper()
	store := queuestore.New(queuestore.Options{DB: pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever}})
	t.Cleanup(func() { _ = store.Close() })
	bc := events.New(events.Options{})
	reg := processor.NewRegistry()
	reg.Register("lists", p)
	eng := engine.New(engine.Options{Store: store, Registry: reg, Broadcaster: bc, Window: time.Millisecond})
	stopper := &stopCounter{}
	h := New(Options{Engine: eng, Broadcaster: bc, Stoppers: []interface{ Stop() }{stopper}})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() { _ = h.Serve(ctx); close(served) }()
	t.Cleanup(func() { cancel(); <-served })
	return h, cancel, stopper
}

func roundTrip(t *testing.T, h *Host, cmd Command) Reply {
	t.Helper()
	ch := make(chan Reply, 1)
	cmd.Reply = ch
	require.NoError(t, h.Submit(context.Background(), cmd))
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply for %s", cmd.Kind)
		return Reply{}
	}
}

func TestEnqueueAndStatus(t *testing.T) {
	h, _, _ := newTestHost(t)

	r := roundTrip(t, h, Command{Kind: KindEnqueue, ReplyID: "r1", QueueName: "lists", ResourceKey: "L1", Payload: json.RawMessage(`{"a":1}`)})
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "r1", r.ReplyID)
	require.NotNil(t, r.Entry)
	assert.Equal(t, "lists::L1", r.Entry.ID)

	r = roundTrip(t, h, Command{Kind: KindStatus, ReplyID: "r2", ResourceKey: "L1"})
	require.True(t, r.OK)
	require.NotNil(t, r.Status)
	require.Len(t, r.Status.Items, 1)
	assert.Equal(t, queue.StatusPending, r.Status.Items[0].Status)
}

func TestStartRepliesOKEvenWhenRefused(t *testing.T) {
	h, _, _ := newTestHost(t)
	r := roundTrip(t, h, Command{Kind: KindStart})
	assert.True(t, r.OK)
	assert.False(t, r.Started)
	assert.NotEmpty(t, r.ReplyID, "host assigns a reply id when none was sent")
}

func TestStartDrainsWithToken(t *testing.T) {
	h, _, _ := newTestHost(t)
	sub := h.Events().Subscribe(events.SubscribeOptions{Buffer: 16})
	defer sub.Close()

	roundTrip(t, h, Command{Kind: KindEnqueue, QueueName: "lists", ResourceKey: "L1"})
	time.Sleep(5 * time.Millisecond)
	r := roundTrip(t, h, Command{Kind: KindStart, Token: "tok"})
	require.True(t, r.OK)
	assert.True(t, r.Started)

	var got []events.Kind
	for ev := range sub.C() {
		got = append(got, ev.Event)
		if ev.Event.Terminal() {
			break
		}
	}
	assert.Equal(t, []events.Kind{events.KindProcessingStart, events.KindProcessing, events.KindProcessed, events.KindDrained}, got)
}

func TestFailuresAndUnknownCommands(t *testing.T) {
	h, _, _ := newTestHost(t)

	r := roundTrip(t, h, Command{Kind: KindEnqueue, QueueName: "", ResourceKey: "x"})
	assert.False(t, r.OK)
	assert.ErrorIs(t, r.Err, engine.ErrInvalidArgument)
	assert.NotEmpty(t, r.Error)

	r = roundTrip(t, h, Command{Kind: "QUEUE_BOGUS"})
	assert.False(t, r.OK)
	assert.Contains(t, r.Error, "unknown command")

	assert.True(t, roundTrip(t, h, Command{Kind: KindStop}).OK)
	assert.True(t, roundTrip(t, h, Command{Kind: KindClearAll}).OK)
	assert.True(t, roundTrip(t, h, Command{Kind: KindPurgeResource, QueueName: "lists", ResourceKey: "nope"}).OK)
}

func TestFireAndForgetAndBlockedReceiver(t *testing.T) {
	h, _, _ := newTestHost(t)
	require.NoError(t, h.Submit(context.Background(), Command{Kind: KindEnqueue, QueueName: "lists", ResourceKey: "a"}))

	unbuffered := make(chan Reply)
	require.NoError(t, h.Submit(context.Background(), Command{Kind: KindStop, Reply: unbuffered}))

	r := roundTrip(t, h, Command{Kind: KindStatus})
	require.True(t, r.OK)
	assert.Len(t, r.Status.Items, 1)
}

func TestShutdownStopsAndRejects(t *testing.T) {
	h, cancel, stopper := newTestHost(t)
	cancel()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("host did not stop")
	}
	assert.Equal(t, int32(1), stopper.n.Load())
	assert.ErrorIs(t, h.Submit(context.Background(), Command{Kind: KindStop}), ErrClosed)
}

func TestStartWithoutTokenDropsPreviousToken(t *testing.T) {
	h, _, _ := newTestHost(t)
	h.eng.SetToken("stale")
	r := roundTrip(t, h, Command{Kind: KindStart})
	assert.True(t, r.OK)
	assert.False(t, r.Started)
	assert.False(t, h.eng.HasToken())
}

func TestDoneWaitsForActiveRunAndStoppers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h, cancel, stopper := newTestHostWith(t, processor.Func(func(context.Context, queue.Entry, processor.Context) (bool, error) {
		close(entered)
		<-release
		return true, nil
	}))

	roundTrip(t, h, Command{Kind: KindEnqueue, QueueName: "lists", ResourceKey: "L1"})
	time.Sleep(5 * time.Millisecond)
	require.True(t, roundTrip(t, h, Command{Kind: KindStart, Token: "tok"}).Started)
	<-entered

	cancel()
	select {
	case <-h.Closing():
	case <-time.After(2 * time.Second):
		t.Fatalf("host did not start closing")
	}
	assert.ErrorIs(t, h.Submit(context.Background(), Command{Kind: KindStatus}), ErrClosed)

	select {
	case <-h.Done():
		t.Fatalf("done closed while a run is still active")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int32(0), stopper.n.Load())

	close(release)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("host did not stop")
	}
	assert.Equal(t, int32(1), stopper.n.Load())
	assert.False(t, h.eng.Running())
}
