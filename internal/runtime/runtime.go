package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	cfgpkg "github.com/rzbill/syncq/internal/config"
	"github.com/rzbill/syncq/internal/engine"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/host"
	"github.com/rzbill/syncq/internal/metrics"
	"github.com/rzbill/syncq/internal/processor"
	"github.com/rzbill/syncq/internal/processor/remote"
	"github.com/rzbill/syncq/internal/queuestore"
	"github.com/rzbill/syncq/internal/scheduler"
	pebblestore "github.com/rzbill/syncq/internal/storage/pebble"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Metrics defaults to a registry with Go runtime collectors.
	Metrics *metrics.Metrics
	// Processors are registered after the remote uploaders from Config, so
	// they win on a name clash.
	Processors map[string]processor.Processor
}

// Runtime wires storage, scheduling, the engine and its host for a single
// process.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics

	store *queuestore.Store
	bc    *events.Broadcaster
	coal  *scheduler.Coalescer
	eng   *engine.Engine
	host  *host.Host
}

// Open validates the configuration and builds every component. The store is
// opened lazily on the first queue operation, so Open does not touch disk.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	names, err := cfg.QueueNamePattern()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(true)
	}

	store := queuestore.New(queuestore.Options{
		DB: pebblestore.Options{
			DataDir: cfg.ResolveDataDir(),
			Fsync:   fsync,
			Metrics: m.StorageHook(),
		},
		Logger: logger,
	})
	bc := events.New(events.Options{
		Buffer: cfg.SubscriberBuffer,
		Logger: logger,
		OnDrop: func(k events.Kind) { m.EventDropped(string(k)) },
	})
	window := time.Duration(cfg.CoalesceWindowMs) * time.Millisecond
	coal := scheduler.New(window, bc, logger)

	reg := processor.NewRegistry()
	if len(cfg.Remote.Queues) > 0 {
		up := remote.New(remote.Options{
			BaseURL:      cfg.Remote.BaseURL,
			ArgHeader:    cfg.Remote.ArgHeader,
			PathTemplate: cfg.Remote.PathTemplate,
			Timeout:      time.Duration(cfg.Remote.TimeoutMs) * time.Millisecond,
			Logger:       logger,
		})
		for _, q := range cfg.Remote.Queues {
			reg.Register(q, up)
		}
	}
	for name, p := range opts.Processors {
		reg.Register(name, p)
	}

	eng := engine.New(engine.Options{
		Store:         store,
		Registry:      reg,
		Broadcaster:   bc,
		Coalescer:     coal,
		Logger:        logger,
		Metrics:       m,
		Window:        window,
		FailurePolicy: engine.ParseFailurePolicy(cfg.FailurePolicy),
		QueueNames:    names,
	})
	h := host.New(host.Options{
		Engine:      eng,
		Broadcaster: bc,
		Stoppers:    []interface{ Stop() }{coal},
		Logger:      logger,
	})

	logger.Info("runtime ready",
		logpkg.Str("data_dir", cfg.ResolveDataDir()),
		logpkg.Str("fsync", fsync.String()),
		logpkg.Int64("coalesce_ms", cfg.CoalesceWindowMs),
		logpkg.Str("failure_policy", cfg.FailurePolicy),
		logpkg.F("processors", reg.Names()))

	return &Runtime{
		config:  cfg,
		logger:  logger,
		metrics: m,
		store:   store,
		bc:      bc,
		coal:    coal,
		eng:     eng,
		host:    h,
	}, nil
}

// Serve runs the host until ctx ends. With RequeueInterrupted set, entries a
// crashed process left processing are made pending again first.
func (r *Runtime) Serve(ctx context.Context) error {
	if r.config.RequeueInterrupted {
		n, err := r.eng.RequeueInterrupted(ctx)
		if err != nil {
			return fmt.Errorf("runtime: requeue interrupted: %w", err)
		}
		if n > 0 {
			r.logger.Warn("requeued interrupted entries", logpkg.Int("count", n))
		}
	}
	return r.host.Serve(ctx)
}

// Close stops the engine and the coalescer, then closes the store. Call it
// after Serve has returned, or instead of Serve.
func (r *Runtime) Close() error {
	r.eng.Stop()
	r.eng.Wait()
	r.coal.Stop()
	if err := r.store.Close(); err != nil && !errors.Is(err, queuestore.ErrClosed) {
		return err
	}
	return nil
}

// CheckHealth opens the store if needed and pings it.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Host is the command endpoint clients talk to.
func (r *Runtime) Host() *host.Host { return r.host }

// Engine exposes the engine for in-process use (tests, embedding).
func (r *Runtime) Engine() *engine.Engine { return r.eng }

// Registry exposes the processor registry.
func (r *Runtime) Registry() *processor.Registry { return r.eng.Registry() }

// Metrics returns the metrics set.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
