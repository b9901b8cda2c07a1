package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/syncq/internal/config"
	"github.com/rzbill/syncq/internal/runtime"
	httpserver "github.com/rzbill/syncq/internal/server/http"
	logpkg "github.com/rzbill/syncq/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// LoadConfig reads path (JSON or YAML; empty means defaults) and overlays
// SYNCQ_* environment variables.
func LoadConfig(path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	return cfg, nil
}

// Run starts the host and the HTTP gateway and blocks until ctx is cancelled
// or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("log config: %w", err)
		}
		logger = l
	}
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.CheckHealth(sctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	logger.Info("starting syncq server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.ResolveDataDir()),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
		logpkg.Int("sub_buf", cfg.SubscriberBuffer))

	hsrv := httpserver.New(rt, logger)
	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return rt.Serve(gctx) })
	g.Go(func() error {
		if err := hsrv.ListenAndServe(gctx, cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	err = g.Wait()
	hsrv.Close()
	logger.Info("syncq server stopped")
	return err
}
