package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/metrics"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/queue"
	"github.com/rzbill/syncq/internal/queuestore"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// Engine drains the store one entry at a time. At most one run is active, so
// at most one entry is ever in the processing state.
type Engine struct {
	store    Store
	registry *processor.Registry
	bc       Broadcaster
	coal     Coalescer
	logger   logpkg.Logger
	metrics  *metrics.Metrics
	opts     Options

	mu            sync.Mutex
	token         string
	running       bool
	stopRequested bool
	done          chan struct{}

	// writeMu orders enqueue/purge writes against the run loop's
	// read-check-write steps on a single entry.
	writeMu sync.Mutex
}

// New builds an engine from opts.
func New(opts Options) *Engine {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Registry == nil {
		opts.Registry = processor.NewRegistry()
	}
	coal := opts.Coalescer
	if coal == nil {
		coal = noopCoalescer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Engine{
		store:    opts.Store,
		registry: opts.Registry,
		bc:       opts.Broadcaster,
		coal:     coal,
		logger:   logger.WithComponent("engine"),
		metrics:  opts.Metrics,
		opts:     opts,
	}
}

// Registry returns the processor registry consulted by runs.
func (e *Engine) Registry() *processor.Registry { return e.registry }

// SetToken stores the credential for the next run. Every run clears it.
func (e *Engine) SetToken(token string) {
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
}

// HasToken reports whether a token is set.
func (e *Engine) HasToken() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token != ""
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start begins a run in a new goroutine. It returns false without side effects
// when a run is already active or no token is set.
func (e *Engine) Start(ctx context.Context) bool {
	token, done, err := e.claim()
	if err != nil {
		e.logRefusal(err)
		return false
	}
	go func() {
		if err := e.drain(ctx, token, done); err != nil {
			e.logger.Error("run aborted", logpkg.Err(err))
		}
	}()
	return true
}

// Run performs a run on the calling goroutine. It returns ErrRunning or
// ErrNoToken when refused, otherwise the storage error that aborted the run,
// if any.
func (e *Engine) Run(ctx context.Context) error {
	token, done, err := e.claim()
	if err != nil {
		e.logRefusal(err)
		return err
	}
	return e.drain(ctx, token, done)
}

// Stop asks the active run to end after the current entry. A processor call
// in progress is never interrupted.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopRequested = true
	e.mu.Unlock()
}

// Wait blocks until the current run, if any, has finished.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) claim() (string, chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return "", nil, ErrRunning
	}
	if e.token == "" {
		return "", nil, ErrNoToken
	}
	e.running = true
	e.stopRequested = false
	e.done = make(chan struct{})
	return e.token, e.done, nil
}

func (e *Engine) logRefusal(err error) {
	if errors.Is(err, ErrNoToken) {
		e.logger.Info("start refused: no token")
		return
	}
	e.logger.Debug("start ignored: run in progress")
}

func (e *Engine) shouldStop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested
}

// drain owns the claimed run until it returns. Cleanup runs on every exit
// path, including a panic escaping the loop.
func (e *Engine) drain(ctx context.Context, token string, done chan struct{}) (err error) {
	e.metrics.RunStarted()
	e.bc.Broadcast(events.Run(events.KindProcessingStart))
	e.logger.Info("run started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: run panicked: %v", r)
		}
		if err != nil {
			e.logger.Error("run loop failed", logpkg.Err(err))
		}

		e.mu.Lock()
		e.running = false
		e.token = ""
		e.stopRequested = false
		e.mu.Unlock()

		kind := e.terminalKind(ctx)
		e.bc.Broadcast(events.Run(kind))
		e.metrics.ObserveRun(string(kind))
		e.logger.Info("run finished", logpkg.Str("outcome", string(kind)))
		close(done)
	}()

	return e.loop(ctx, token)
}

func (e *Engine) loop(ctx context.Context, token string) error {
	isolated := map[string]bool{}
	for !e.shouldStop() {
		entries, err := e.store.GetAll(ctx)
		if err != nil {
			return err
		}
		now := e.opts.Clock().UnixMilli()
		ready := entries[:0]
		for _, ent := range entries {
			if ent.Ready(now) && !isolated[ent.QueueName] {
				ready = append(ready, ent)
			}
		}
		if len(ready) == 0 {
			return nil
		}
		item := ready[queue.MostRecent(ready)]

		claimed, err := e.markProcessing(ctx, item)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		e.bc.Broadcast(events.ForEntry(events.KindProcessing, item.QueueName, item.ResourceKey))

		ok := e.invoke(ctx, item, token)
		if ok {
			if _, err := e.finish(ctx, item, nil); err != nil {
				return err
			}
			e.bc.Broadcast(events.ForEntry(events.KindProcessed, item.QueueName, item.ResourceKey))
			continue
		}

		marked, err := e.finish(ctx, item, func(cur *queue.Entry) { cur.Status = queue.StatusError })
		if err != nil {
			return err
		}
		// A superseded entry is pending again, so no error is reported for it.
		if marked {
			e.bc.Broadcast(events.ForEntry(events.KindError, item.QueueName, item.ResourceKey))
		}
		if e.opts.FailurePolicy != Isolate {
			return nil
		}
		isolated[item.QueueName] = true
		e.logger.Warn("isolating queue for the rest of the run", logpkg.Queue(item.QueueName))
	}
	return nil
}

// markProcessing flips item to processing unless it changed since it was read.
func (e *Engine) markProcessing(ctx context.Context, item queue.Entry) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	cur, err := e.store.Get(ctx, item.ID)
	if errors.Is(err, queuestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.LastUpdatedAtMs != item.LastUpdatedAtMs || cur.Status != queue.StatusPending {
		return false, nil
	}
	cur.Status = queue.StatusProcessing
	return true, e.store.Put(ctx, cur)
}

// finish deletes the processed entry (mutate == nil) or rewrites it with
// mutate applied, and reports whether it did. An entry re-enqueued or purged
// during the call is left alone.
func (e *Engine) finish(ctx context.Context, item queue.Entry, mutate func(*queue.Entry)) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	cur, err := e.store.Get(ctx, item.ID)
	if errors.Is(err, queuestore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.LastUpdatedAtMs != item.LastUpdatedAtMs || cur.Status != queue.StatusProcessing {
		e.logger.Debug("entry changed during processing", logpkg.Queue(item.QueueName), logpkg.Resource(item.ResourceKey))
		return false, nil
	}
	if mutate == nil {
		return true, e.store.Delete(ctx, item.ID)
	}
	mutate(&cur)
	return true, e.store.Put(ctx, cur)
}

// RequeueInterrupted resets entries left in the processing state, which only
// happens when the process died mid-run, back to pending. It refuses while a
// run is active and returns the number of entries reset.
func (e *Engine) RequeueInterrupted(ctx context.Context) (int, error) {
	if e.Running() {
		return 0, ErrRunning
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	entries, err := e.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ent := range entries {
		if ent.Status != queue.StatusProcessing {
			continue
		}
		ent.Status = queue.StatusPending
		if err := e.store.Put(ctx, ent); err != nil {
			return n, err
		}
		n++
		e.logger.Info("requeued interrupted entry", logpkg.Queue(ent.QueueName), logpkg.Resource(ent.ResourceKey))
	}
	return n, nil
}

// invoke calls the processor for item. A missing processor, an error and a
// panic all count as failure.
func (e *Engine) invoke(ctx context.Context, item queue.Entry, token string) (ok bool) {
	log := e.logger.With(logpkg.Queue(item.QueueName), logpkg.Resource(item.ResourceKey))
	p, found := e.registry.Lookup(item.QueueName)
	if !found {
		log.Warn("no processor registered")
		e.metrics.ObserveProcessed(item.QueueName, 0, false, "missing_processor")
		return false
	}

	start := time.Now()
	reason := "rejected"
	defer func() {
		if r := recover(); r != nil {
			log.Error("processor panicked", logpkg.F("panic", r))
			ok, reason = false, "panic"
		}
		if ok {
			reason = ""
		}
		e.metrics.ObserveProcessed(item.QueueName, time.Since(start), ok, reason)
	}()

	ok, err := p.Process(ctx, item, processor.Context{Token: token})
	if err != nil {
		log.Warn("processor failed", logpkg.Err(err))
		reason = "error"
		return false
	}
	if !ok {
		log.Warn("processor reported failure")
	}
	return ok
}

func (e *Engine) terminalKind(ctx context.Context) events.Kind {
	entries, err := e.store.GetAll(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Warn("cannot read store after run", logpkg.Err(err))
		return events.KindStopped
	}
	for _, ent := range entries {
		if ent.Status == queue.StatusPending {
			return events.KindStopped
		}
	}
	return events.KindDrained
}

// Enqueue upserts the entry for (queueName, resourceKey), resetting its status
// to pending and restarting its coalescing window.
func (e *Engine) Enqueue(ctx context.Context, queueName, resourceKey string, payload json.RawMessage) (queue.Entry, error) {
	if err := e.validateKey(queueName, resourceKey); err != nil {
		return queue.Entry{}, err
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return queue.Entry{}, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidArgument)
	}

	now := e.opts.Clock().UnixMilli()
	ent := queue.Entry{
		ID:              queue.MakeID(queueName, resourceKey),
		QueueName:       queueName,
		ResourceKey:     resourceKey,
		Payload:         append(json.RawMessage(nil), payload...),
		LastUpdatedAtMs: now,
		CoalesceUntilMs: now + e.opts.Window.Milliseconds(),
		Status:          queue.StatusPending,
	}
	e.writeMu.Lock()
	err := e.store.Put(ctx, ent)
	e.writeMu.Unlock()
	if err != nil {
		return queue.Entry{}, fmt.Errorf("enqueue %s: %w", ent.ID, err)
	}

	e.coal.Touch(queueName, resourceKey)
	e.metrics.Enqueued(queueName)
	e.logger.Debug("enqueued", logpkg.Queue(queueName), logpkg.Resource(resourceKey))
	return ent, nil
}

// Status lists entry summaries, restricted to one resource key when filter is
// non-empty.
func (e *Engine) Status(ctx context.Context, filter string) (queue.Snapshot, error) {
	entries, err := e.store.GetAll(ctx)
	if err != nil {
		return queue.Snapshot{}, fmt.Errorf("status: %w", err)
	}
	return queue.Summarize(e.Running(), entries, filter), nil
}

// PurgeResource deletes one entry if present.
func (e *Engine) PurgeResource(ctx context.Context, queueName, resourceKey string) error {
	if queueName == "" || resourceKey == "" {
		return fmt.Errorf("%w: queue name and resource key are required", ErrInvalidArgument)
	}
	id := queue.MakeID(queueName, resourceKey)
	e.writeMu.Lock()
	err := e.store.Delete(ctx, id)
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("purge %s: %w", id, err)
	}
	e.coal.Cancel(id)
	e.logger.Debug("purged", logpkg.Queue(queueName), logpkg.Resource(resourceKey))
	return nil
}

// ClearAll empties the store.
func (e *Engine) ClearAll(ctx context.Context) error {
	e.writeMu.Lock()
	err := e.store.Clear(ctx)
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	e.coal.CancelAll()
	e.logger.Info("store cleared")
	return nil
}

func (e *Engine) validateKey(queueName, resourceKey string) error {
	if queueName == "" || resourceKey == "" {
		return fmt.Errorf("%w: queue name and resource key are required", ErrInvalidArgument)
	}
	if re := e.opts.QueueNames; re != nil && !re.MatchString(queueName) {
		return fmt.Errorf("%w: queue name %q does not match %s", ErrInvalidArgument, queueName, re)
	}
	return nil
}
