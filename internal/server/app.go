// Package server builds the cache warmer service from configuration and runs
// it: HTTP API, tick worker and completion listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/api"
	"github.com/JakeFAU/cache-warmer/internal/config"
	pubmemory "github.com/JakeFAU/cache-warmer/internal/publisher/memory"
	memscheduler "github.com/JakeFAU/cache-warmer/internal/scheduler/memory"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// ErrRunStopped is returned by RunOnce when the run ends without completing,
// either through a stop command or a newer start.
var ErrRunStopped = errors.New("warm run stopped before completion")

const (
	pollInterval         = 250 * time.Millisecond
	workerDrainTimeout   = 5 * time.Second
	defaultShutdownAfter = 10 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       warmer.RunStore
	controller  *warmer.Controller
	stepper     *warmer.Stepper
	scheduler   *memscheduler.Scheduler
	tracer      trace.Tracer
	apiServer   *api.Server
	completions chan warmer.Completion
	// events records completions when Pub/Sub is disabled.
	events  *pubmemory.Publisher
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Controller exposes the warm controller.
func (a *App) Controller() *warmer.Controller {
	return a.controller
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// StartWorker runs the tick loop until ctx ends and resumes an active run
// left by a previous process. The returned channel closes when the loop exits.
func (a *App) StartWorker(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("tick worker started")
		a.scheduler.Run(ctx, a.handleTick)
		a.logger.Info("tick worker stopped")
	}()
	resumed, err := a.controller.Resume(ctx)
	switch {
	case err != nil:
		a.logger.Warn("resume check failed", zap.Error(err))
	case resumed:
		a.logger.Info("resumed active warm run")
	}
	return done
}

func (a *App) handleTick(ctx context.Context) error {
	if d := a.cfg.Scheduler.TickTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	ctx, span := a.tracer.Start(ctx, "warm.tick")
	defer span.End()
	outcome, err := a.stepper.Tick(ctx)
	span.SetAttributes(attribute.String("warm.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Run serves the HTTP API and processes ticks until the context is canceled
// or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	workerDone := a.StartWorker(workerCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownAfter
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	cancelWorker()
	a.waitWorker(workerDone)

	return a.Close(shutdownCtx)
}

// RunOnce drives a single run in the foreground and returns its completion.
// With resume set, an active run left in the store is continued instead of
// starting a new one. Interrupting ctx leaves the run resumable.
func (a *App) RunOnce(ctx context.Context, req warmer.StartRequest, resume bool) (warmer.Completion, error) {
	var runID string
	if resume {
		run, err := a.store.Load(ctx)
		if err != nil {
			return warmer.Completion{}, fmt.Errorf("load run: %w", err)
		}
		if run.Active() {
			runID = run.State.RunID
		}
	}

	// StartWorker re-arms the scheduler for an active run.
	workerCtx, cancelWorker := context.WithCancel(ctx)
	workerDone := a.StartWorker(workerCtx)
	defer func() {
		cancelWorker()
		a.waitWorker(workerDone)
	}()

	if runID == "" {
		run, err := a.controller.Start(ctx, req)
		if err != nil {
			return warmer.Completion{}, fmt.Errorf("start run: %w", err)
		}
		runID = run.State.RunID
	}
	a.logger.Info("foreground run started", zap.String("run_id", runID), zap.Bool("resumed", resume))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case c := <-a.completions:
			if c.RunID == runID {
				return c, nil
			}
		case <-ticker.C:
			run, err := a.store.Load(ctx)
			if err != nil {
				a.logger.Warn("poll run state", zap.Error(err))
				continue
			}
			if run.State.RunID != runID || run.State.Status == warmer.StatusNotOperating {
				return warmer.Completion{}, ErrRunStopped
			}
		case <-ctx.Done():
			a.logger.Info("foreground run interrupted; state kept for resume", zap.String("run_id", runID))
			return warmer.Completion{}, fmt.Errorf("run interrupted: %w", ctx.Err())
		}
	}
}

func (a *App) waitWorker(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(workerDrainTimeout):
		a.logger.Warn("tick worker did not stop in time")
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(_ context.Context) error {
	a.scheduler.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
