package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rzbill/syncq/internal/client"
	cfgpkg "github.com/rzbill/syncq/internal/config"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
)

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.CoalesceWindowMs = 1
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.FailurePolicy = "retry"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
	cfg = testConfig(t)
	cfg.QueueNameRegex = "("
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected regex error")
	}
}

func TestHealthFailsAfterClose(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestEndToEndDrain(t *testing.T) {
	var seen atomic.Int32
	rt, err := Open(Options{
		Config: testConfig(t),
		Processors: map[string]processor.Processor{
			"lists": processor.Func(func(context.Context, queue.Entry, processor.Context) (bool, error) {
				seen.Add(1)
				return true, nil
			}),
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Serve(ctx)

	p := client.New(rt.Host())
	defer p.Close()

	terminal := make(chan events.Kind, 4)
	unsubscribe := p.Subscribe(func(ev events.Event) {
		if ev.Event.Terminal() {
			terminal <- ev.Event
		}
	})
	defer unsubscribe()

	if _, err := p.Enqueue(ctx, "lists", "L1", json.RawMessage(`{"items":["milk"]}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	started, err := p.Start(ctx, "tok")
	if err != nil || !started {
		t.Fatalf("start: %v %v", started, err)
	}
	select {
	case k := <-terminal:
		if k != events.KindDrained {
			t.Fatalf("terminal = %s", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not finish")
	}
	if seen.Load() != 1 {
		t.Fatalf("processed %d times", seen.Load())
	}
	snap, err := p.Status(ctx, "")
	if err != nil || len(snap.Items) != 0 {
		t.Fatalf("status after drain: %+v %v", snap, err)
	}
}

func TestServeRequeuesInterruptedEntries(t *testing.T) {
	var seen atomic.Int32
	cfg := testConfig(t)
	cfg.RequeueInterrupted = true
	rt, err := Open(Options{
		Config: cfg,
		Processors: map[string]processor.Processor{
			"lists": processor.Func(func(context.Context, queue.Entry, processor.Context) (bool, error) {
				seen.Add(1)
				return true, nil
			}),
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	err = rt.store.Put(context.Background(), queue.Entry{
		ID:              queue.MakeID("lists", "L1"),
		QueueName:       "lists",
		ResourceKey:     "L1",
		LastUpdatedAtMs: 1,
		CoalesceUntilMs: 1,
		Status:          queue.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Serve(ctx)

	p := client.New(rt.Host())
	defer p.Close()
	terminal := make(chan events.Kind, 4)
	unsubscribe := p.Subscribe(func(ev events.Event) {
		if ev.Event.Terminal() {
			terminal <- ev.Event
		}
	})
	defer unsubscribe()

	started, err := p.Start(ctx, "tok")
	if err != nil || !started {
		t.Fatalf("start: %v %v", started, err)
	}
	select {
	case k := <-terminal:
		if k != events.KindDrained {
			t.Fatalf("terminal = %s", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not finish")
	}
	if seen.Load() != 1 {
		t.Fatalf("processed %d times", seen.Load())
	}
}

func TestRemoteQueuesRegisterUploader(t *testing.T) {
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		uploads.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Remote.BaseURL = srv.URL
	cfg.Remote.Queues = []string{"lists", "notes"}
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	if got := rt.Registry().Names(); len(got) != 2 || got[0] != "lists" || got[1] != "notes" {
		t.Fatalf("registered = %v", got)
	}

	ctx := context.Background()
	eng := rt.Engine()
	if _, err := eng.Enqueue(ctx, "notes", "n1", json.RawMessage(`{"t":"hi"}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	eng.SetToken("tok")
	if err := eng.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if uploads.Load() != 1 {
		t.Fatalf("uploads = %d", uploads.Load())
	}
}
