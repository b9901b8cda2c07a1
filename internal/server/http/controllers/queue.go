package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/syncq/internal/client"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/runtime"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

const (
	maxFilterLen     = 2048
	defaultHeartbeat = 15 * time.Second
)

// QueueController exposes the queue commands and the event stream. Commands
// go through a client proxy, so HTTP callers are ordinary host clients.
type QueueController struct {
	rt        *runtime.Runtime
	proxy     *client.Proxy
	logger    logpkg.Logger
	heartbeat time.Duration
}

func NewQueueController(rt *runtime.Runtime, proxy *client.Proxy, logger logpkg.Logger) *QueueController {
	return &QueueController{rt: rt, proxy: proxy, logger: logger, heartbeat: defaultHeartbeat}
}

// RegisterRoutes mounts the /v1/queue routes.
func (c *QueueController) RegisterRoutes(r chi.Router) {
	r.Route("/v1/queue", func(r chi.Router) {
		r.Post("/enqueue", c.handleEnqueue)
		r.Get("/status", c.handleStatus)
		r.Post("/start", c.handleStart)
		r.Post("/stop", c.handleStop)
		r.Post("/purge", c.handlePurge)
		r.Post("/clear", c.handleClear)
		r.Get("/events", c.handleEventsSSE)
		r.Get("/processors", c.handleProcessors)
	})
}

func (c *QueueController) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueReq
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := c.proxy.Enqueue(r.Context(), req.QueueName, req.ResourceKey, req.Payload)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, map[string]any{"entry": sum})
}

// handleStatus returns the processing flag and the entry summaries,
// optionally narrowed to one resource key.
func (c *QueueController) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := c.proxy.Status(r.Context(), r.URL.Query().Get("resourceKey"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, map[string]any{"processing": snap.Processing, "items": snap.Items})
}

// handleStart takes the token from the body or a bearer header. The body
// token wins when both are present.
func (c *QueueController) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token := req.Token
	if token == "" {
		token = bearerToken(r)
	}
	started, err := c.proxy.Start(r.Context(), token)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, map[string]any{"started": started})
}

func (c *QueueController) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := c.proxy.Stop(r.Context()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, nil)
}

func (c *QueueController) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req purgeReq
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.proxy.PurgeResource(r.Context(), req.QueueName, req.ResourceKey); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, nil)
}

func (c *QueueController) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := c.proxy.ClearAll(r.Context()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeOK(w, nil)
}

func (c *QueueController) handleProcessors(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"processors": c.rt.Registry().Names()})
}

// handleEventsSSE streams broadcast events until the client goes away. The
// optional filter is a CEL expression over event, queue, key, at_ms and
// now_ms. Only events broadcast after the request arrives are sent.
func (c *QueueController) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("filter")
	if len(expr) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "Filter too long")
		return
	}
	filter, err := events.NewFilter(expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := c.rt.Host().Events().Subscribe(events.SubscribeOptions{Filter: filter})
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sink := sseSink{w: w}
	_ = sink.Flush()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sink.Ping(); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sink.Send(ev); err != nil {
				c.logger.Debug("sse client gone", logpkg.Err(err))
				return
			}
		}
	}
}
