package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/syncq/internal/config"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
	"github.com/rzbill/syncq/internal/runtime"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.CoalesceWindowMs = 1
	rt, err := runtime.Open(runtime.Options{
		Config: cfg,
		Processors: map[string]processor.Processor{
			"lists": processor.Func(func(context.Context, queue.Entry, processor.Context) (bool, error) {
				return true, nil
			}),
		},
	})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() { _ = rt.Serve(ctx); close(served) }()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	s := New(rt, logger)
	t.Cleanup(func() {
		s.Close()
		cancel()
		<-served
		_ = rt.Close()
	})
	return s, rt
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 || out["status"] != "ok" {
		t.Fatalf("status: %d %v", w.Code, out)
	}
}

func TestEnqueueAndStatus(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"queueName":"lists","resourceKey":"L1","payload":{"items":["milk"]}}`)
	if w.Code != 200 || out["ok"] != true {
		t.Fatalf("enqueue: %d %v", w.Code, out)
	}
	entry := out["entry"].(map[string]any)
	if entry["id"] != "lists::L1" || entry["status"] != "pending" {
		t.Fatalf("entry: %v", entry)
	}

	w, out = do(t, s, http.MethodGet, "/v1/queue/status?resourceKey=L1", "")
	if w.Code != 200 || out["processing"] != false {
		t.Fatalf("status: %d %v", w.Code, out)
	}
	if items := out["items"].([]any); len(items) != 1 {
		t.Fatalf("items: %v", items)
	}

	_, out = do(t, s, http.MethodGet, "/v1/queue/status?resourceKey=other", "")
	if items := out["items"].([]any); len(items) != 0 {
		t.Fatalf("filtered items: %v", items)
	}
}

func TestEnqueueValidation(t *testing.T) {
	s, _ := newTestServer(t)
	cases := map[string]string{
		"missing key":  `{"queueName":"lists","payload":{}}`,
		"bad json":     `{"queueName":`,
		"bad queue":    `{"queueName":"Has Spaces","resourceKey":"L1","payload":{}}`,
		"no payload":   `{"queueName":"lists","resourceKey":"L1"}`,
		"empty object": `{}`,
	}
	for name, body := range cases {
		w, out := do(t, s, http.MethodPost, "/v1/queue/enqueue", body)
		if w.Code != http.StatusBadRequest || out["ok"] != false {
			t.Fatalf("%s: %d %v", name, w.Code, out)
		}
	}
}

func TestStartWithoutTokenNotStarted(t *testing.T) {
	s, _ := newTestServer(t)
	w, out := do(t, s, http.MethodPost, "/v1/queue/start", "")
	if w.Code != 200 || out["ok"] != true || out["started"] != false {
		t.Fatalf("start: %d %v", w.Code, out)
	}
}

func TestStartWithBearerDrains(t *testing.T) {
	s, rt := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"queueName":"lists","resourceKey":"L1","payload":[1]}`)
	time.Sleep(5 * time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/v1/queue/start", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"started":true`) {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	rt.Engine().Wait()

	_, out := do(t, s, http.MethodGet, "/v1/queue/status", "")
	if items := out["items"].([]any); len(items) != 0 {
		t.Fatalf("queue not drained: %v", items)
	}
}

func TestPurgeClearStopAndProcessors(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"queueName":"lists","resourceKey":"L1","payload":1}`)
	do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"queueName":"lists","resourceKey":"L2","payload":2}`)

	if w, _ := do(t, s, http.MethodPost, "/v1/queue/purge", `{"queueName":"lists"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("purge validation: %d", w.Code)
	}
	if w, out := do(t, s, http.MethodPost, "/v1/queue/purge", `{"queueName":"lists","resourceKey":"L1"}`); w.Code != 200 || out["ok"] != true {
		t.Fatalf("purge: %d %v", w.Code, out)
	}
	_, out := do(t, s, http.MethodGet, "/v1/queue/status", "")
	if items := out["items"].([]any); len(items) != 1 {
		t.Fatalf("after purge: %v", items)
	}
	if w, _ := do(t, s, http.MethodPost, "/v1/queue/clear", ""); w.Code != 200 {
		t.Fatalf("clear: %d", w.Code)
	}
	_, out = do(t, s, http.MethodGet, "/v1/queue/status", "")
	if items := out["items"].([]any); len(items) != 0 {
		t.Fatalf("after clear: %v", items)
	}
	if w, _ := do(t, s, http.MethodPost, "/v1/queue/stop", ""); w.Code != 200 {
		t.Fatalf("stop: %d", w.Code)
	}
	_, out = do(t, s, http.MethodGet, "/v1/queue/processors", "")
	if ps := out["processors"].([]any); len(ps) != 1 || ps[0] != "lists" {
		t.Fatalf("processors: %v", ps)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"queueName":"lists","resourceKey":"L1","payload":{}}`)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 200 || !strings.Contains(w.Body.String(), "syncq_entries_enqueued_total") {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestEventsRejectsBadFilter(t *testing.T) {
	s, _ := newTestServer(t)
	w, _ := do(t, s, http.MethodGet, "/v1/queue/events?filter=event+%2B+1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestEventsSSEFiltered(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+`/v1/queue/events?filter=key+%3D%3D+%22L2%22`, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	for _, key := range []string{"L1", "L2"} {
		body := `{"queueName":"lists","resourceKey":"` + key + `","payload":{}}`
		r, err := http.Post(ts.URL+"/v1/queue/enqueue", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		r.Body.Close()
	}

	sc := bufio.NewScanner(resp.Body)
	var eventName, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" {
			break
		}
	}
	if eventName != "ready" {
		t.Fatalf("event = %q", eventName)
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if ev["resourceKey"] != "L2" || ev["queueName"] != "lists" {
		t.Fatalf("unexpected event %v", ev)
	}
}
