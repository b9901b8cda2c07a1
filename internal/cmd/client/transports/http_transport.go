package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/queue"
)

// HTTPTransport implements QueueTransport against the REST gateway.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

// NewHTTPTransport uses client, or http.DefaultClient when nil. The event
// stream never times out, so client should not set a global Timeout.
func NewHTTPTransport(baseURL func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: baseURL, client: client}
}

var _ QueueTransport = (*HTTPTransport)(nil)

func itoa(n int) string { return strconv.Itoa(n) }

func (t *HTTPTransport) url(path string) string {
	return strings.TrimRight(t.baseURL(), "/") + path
}

// do sends body (when non-nil) as JSON and decodes the answer into out.
func (t *HTTPTransport) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.url(path), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (t *HTTPTransport) Enqueue(ctx context.Context, queueName, resourceKey string, payload json.RawMessage) (queue.Summary, error) {
	var out struct {
		Entry queue.Summary `json:"entry"`
	}
	body := map[string]any{"queueName": queueName, "resourceKey": resourceKey, "payload": payload}
	err := t.do(ctx, http.MethodPost, "/v1/queue/enqueue", body, &out)
	return out.Entry, err
}

func (t *HTTPTransport) Status(ctx context.Context, resourceKey string) (queue.Snapshot, error) {
	path := "/v1/queue/status"
	if resourceKey != "" {
		path += "?resourceKey=" + url.QueryEscape(resourceKey)
	}
	var snap queue.Snapshot
	if err := t.do(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return queue.Snapshot{}, err
	}
	if snap.Items == nil {
		snap.Items = []queue.Summary{}
	}
	return snap, nil
}

func (t *HTTPTransport) Start(ctx context.Context, token string) (bool, error) {
	var out struct {
		Started bool `json:"started"`
	}
	err := t.do(ctx, http.MethodPost, "/v1/queue/start", map[string]string{"token": token}, &out)
	return out.Started, err
}

func (t *HTTPTransport) Stop(ctx context.Context) error {
	return t.do(ctx, http.MethodPost, "/v1/queue/stop", nil, nil)
}

func (t *HTTPTransport) Purge(ctx context.Context, queueName, resourceKey string) error {
	body := map[string]string{"queueName": queueName, "resourceKey": resourceKey}
	return t.do(ctx, http.MethodPost, "/v1/queue/purge", body, nil)
}

func (t *HTTPTransport) Clear(ctx context.Context) error {
	return t.do(ctx, http.MethodPost, "/v1/queue/clear", nil, nil)
}

func (t *HTTPTransport) Processors(ctx context.Context) ([]string, error) {
	var out struct {
		Processors []string `json:"processors"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/queue/processors", nil, &out)
	return out.Processors, err
}

// Events reads the SSE stream. Only data lines are decoded; the event name
// is repeated inside the JSON body.
func (t *HTTPTransport) Events(ctx context.Context, filter string, onEvent func(events.Event) error) error {
	path := "/v1/queue/events"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
