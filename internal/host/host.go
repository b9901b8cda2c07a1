package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rzbill/syncq/internal/engine"
	"github.com/rzbill/syncq/internal/events"
	"github.com/rzbill/syncq/internal/processor"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

// ErrClosed is returned by Submit once the host has stopped serving.
var ErrClosed = errors.New("host: closed")

// Options wires a Host.
type Options struct {
	Engine      *engine.Engine
	Broadcaster *events.Broadcaster
	// Stoppers are stopped after the engine on shutdown (e.g. the coalescer).
	Stoppers []interface{ Stop() }
	Logger   logpkg.Logger
	// Inbox is the command channel capacity. Zero selects 64.
	Inbox int
}

// Host is the long-lived context that owns the engine. Commands from every
// client are executed one at a time, in arrival order, on the Serve goroutine.
type Host struct {
	eng    *engine.Engine
	bc     *events.Broadcaster
	opts   Options
	logger logpkg.Logger

	inbox   chan Command
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

func New(opts Options) *Host {
	if opts.Inbox <= 0 {
		opts.Inbox = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Host{
		eng:    opts.Engine,
		bc:     opts.Broadcaster,
		opts:   opts,
		logger: logger.WithComponent("host"),
		inbox:   make(chan Command, opts.Inbox),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Events is the broadcaster clients subscribe to.
func (h *Host) Events() *events.Broadcaster { return h.bc }

// Registry exposes the engine's processor registry.
func (h *Host) Registry() *processor.Registry { return h.eng.Registry() }

// Closing is closed as soon as the host stops accepting commands.
func (h *Host) Closing() <-chan struct{} { return h.closing }

// Done is closed after shutdown: the active run has finished and every
// stopper has been stopped.
func (h *Host) Done() <-chan struct{} { return h.done }

// Submit queues cmd for execution.
func (h *Host) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-h.closing:
		return ErrClosed
	default:
	}
	select {
	case h.inbox <- cmd:
		return nil
	case <-h.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve runs the command loop until ctx ends, then stops the engine, waits
// for an active run to finish and stops the registered stoppers. Runs started
// by START inherit ctx.
func (h *Host) Serve(ctx context.Context) error {
	h.logger.Info("host serving")
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-h.inbox:
			h.handle(ctx, cmd)
		}
	}
}

func (h *Host) shutdown() {
	h.once.Do(func() {
		close(h.closing)
		h.eng.Stop()
		h.eng.Wait()
		for _, s := range h.opts.Stoppers {
			s.Stop()
		}
		h.logger.Info("host stopped")
		close(h.done)
	})
}

func (h *Host) handle(ctx context.Context, cmd Command) {
	r := Reply{ReplyID: cmd.ReplyID, OK: true}
	var err error

	switch cmd.Kind {
	case KindEnqueue:
		ent, e := h.eng.Enqueue(ctx, cmd.QueueName, cmd.ResourceKey, cmd.Payload)
		if err = e; err == nil {
			s := ent.Summary()
			r.Entry = &s
		}
	case KindStatus:
		snap, e := h.eng.Status(ctx, cmd.ResourceKey)
		if err = e; err == nil {
			r.Status = &snap
		}
	case KindStart:
		h.eng.SetToken(cmd.Token)
		r.Started = h.eng.Start(ctx)
	case KindStop:
		h.eng.Stop()
	case KindPurgeResource:
		err = h.eng.PurgeResource(ctx, cmd.QueueName, cmd.ResourceKey)
	case KindClearAll:
		err = h.eng.ClearAll(ctx)
	default:
		err = fmt.Errorf("host: unknown command %q", cmd.Kind)
	}

	if err != nil {
		h.logger.Warn("command failed", logpkg.Str("command", string(cmd.Kind)), logpkg.Err(err))
		r.OK, r.Err, r.Error = false, err, err.Error()
	}
	h.reply(cmd, r)
}

func (h *Host) reply(cmd Command, r Reply) {
	if cmd.Reply == nil {
		return
	}
	if r.ReplyID == "" {
		r.ReplyID = uuid.NewString()
	}
	select {
	case cmd.Reply <- r:
	default:
		h.logger.Warn("reply dropped: receiver not ready",
			logpkg.Str("command", string(cmd.Kind)), logpkg.Str("reply_id", r.ReplyID))
	}
}
