package warmer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/clock/system"
	"github.com/JakeFAU/cache-warmer/internal/metrics"
)

// DefaultKinds are the content kinds warmed when none are configured.
var DefaultKinds = []string{"post", "page"}

// DefaultRetryDelay is the pause before re-running a tick that hit a store error.
const DefaultRetryDelay = 5 * time.Second

// StepperConfig controls Stepper behavior.
type StepperConfig struct {
	// Kinds lists the content kinds queried each tick.
	Kinds []string
	// ExclusiveResume skips the item at the cursor when a tick resumes.
	ExclusiveResume bool
	// RetryDelay is used when the store or repository fails mid-tick.
	RetryDelay time.Duration
}

// StepperDeps bundles the collaborators of a Stepper.
type StepperDeps struct {
	Store     RunStore
	Content   ContentRepository
	Resolver  URLResolver
	Fetcher   Fetcher
	Scheduler Scheduler
	// Listener is optional.
	Listener CompletionListener
	Clock    Clock
	// Sleeper defaults to the system clock.
	Sleeper Sleeper
}

// Stepper advances the current run by one batch per tick.
type Stepper struct {
	mu        sync.Mutex
	store     RunStore
	content   ContentRepository
	resolver  URLResolver
	fetcher   Fetcher
	scheduler Scheduler
	listener  CompletionListener
	clock     Clock
	sleeper   Sleeper
	cfg       StepperConfig
	logger    *zap.Logger
}

// NewStepper wires a Stepper.
func NewStepper(deps StepperDeps, cfg StepperConfig, logger *zap.Logger) *Stepper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = DefaultKinds
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	sleeper := deps.Sleeper
	if sleeper == nil {
		sleeper = system.New()
	}
	return &Stepper{
		store:     deps.Store,
		content:   deps.Content,
		resolver:  deps.Resolver,
		fetcher:   deps.Fetcher,
		scheduler: deps.Scheduler,
		listener:  deps.Listener,
		clock:     deps.Clock,
		sleeper:   sleeper,
		cfg:       cfg,
		logger:    logger,
	}
}

// Tick processes at most one batch. Ticks are serialized; a second caller
// waits for the first to return.
func (s *Stepper) Tick(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.tick(ctx)
	metrics.ObserveTick(string(outcome))
	return outcome, err
}

func (s *Stepper) tick(ctx context.Context) (Outcome, error) {
	var stopped bool
	run, err := s.store.Update(ctx, func(r *Run) error {
		stopped = false
		now := s.clock.Now()
		switch {
		case r.State.Cancelled:
			stopped = true
			stopRun(r, now)
		case !r.State.Scheduled:
			return errUnchanged
		default:
			r.State.Status = StatusInProgress
			r.State.UpdatedAt = now
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		s.logger.Debug("tick without an active run")
		return OutcomeIdle, nil
	}
	if err != nil {
		return s.retry(ctx, "begin tick", err)
	}
	if stopped {
		s.logger.Info("warm run stopped", zap.String("run_id", run.State.RunID))
		metrics.ObserveRunEnd("stopped")
		return OutcomeStopped, nil
	}

	runID := run.State.RunID
	from := LowerBound(run.State.Cursor, s.cfg.ExclusiveResume)
	limit := PageSize(run.Config.BatchSize, run.State.Cursor, s.cfg.ExclusiveResume)
	batch, err := s.content.Next(ctx, s.cfg.Kinds, from, limit)
	if err != nil {
		return s.retry(ctx, "query content", err)
	}
	plan := Plan(run.Config, run.State, batch)
	s.logger.Debug("batch planned",
		zap.String("run_id", runID),
		zap.Int64("from_id", from),
		zap.Int("batch", len(batch)),
		zap.Int("fetch", len(plan.Fetch)),
		zap.Bool("finish", plan.Finish),
	)

	for _, item := range plan.Fetch {
		if ctx.Err() != nil {
			return s.interrupted(ctx, runID)
		}
		ok := s.warm(ctx, item)
		// A fetch cut short by the tick context is not progress.
		if ctx.Err() != nil {
			return s.interrupted(ctx, runID)
		}
		s.sleeper.Sleep(ctx, run.Config.Delay())

		run, err = s.store.Update(ctx, func(r *Run) error {
			if r.State.RunID != runID {
				return errSuperseded
			}
			r.State.Cursor = item.ID
			r.State.Processed++
			if !ok {
				r.State.Failed++
			}
			r.State.UpdatedAt = s.clock.Now()
			return nil
		})
		if errors.Is(err, errSuperseded) {
			s.logger.Info("run superseded mid-tick", zap.String("run_id", runID))
			return OutcomeSuperseded, nil
		}
		if err != nil {
			return s.retry(ctx, "record progress", err)
		}
		metrics.SetRunProcessed(run.State.Processed)
	}

	if plan.Finish {
		return s.finish(ctx, runID, plan.Reason)
	}

	_, err = s.store.Update(ctx, func(r *Run) error {
		stopped = false
		if r.State.RunID != runID {
			return errSuperseded
		}
		if !r.State.Cancelled {
			return errUnchanged
		}
		stopped = true
		stopRun(r, s.clock.Now())
		return nil
	})
	switch {
	case errors.Is(err, errSuperseded):
		return OutcomeSuperseded, nil
	case errors.Is(err, errUnchanged):
	case err != nil:
		return s.retry(ctx, "check cancellation", err)
	}
	if stopped {
		s.logger.Info("warm run stopped", zap.String("run_id", runID))
		metrics.ObserveRunEnd("stopped")
		return OutcomeStopped, nil
	}

	if err := s.scheduler.ScheduleOnce(ctx, 0); err != nil {
		return OutcomeContinue, fmt.Errorf("schedule next tick: %w", err)
	}
	return OutcomeContinue, nil
}

// warm requests one item and reports whether it succeeded.
func (s *Stepper) warm(ctx context.Context, item Item) bool {
	target, err := s.resolver.Resolve(item)
	if err != nil {
		s.logger.Warn("unresolvable item", zap.Error(&FetchError{ItemID: item.ID, URL: item.URL, Err: err}))
		metrics.ObserveWarm(item.URL, "unresolved", 0, 0)
		return false
	}
	res, err := s.fetcher.Fetch(ctx, target)
	if err == nil && res.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	if err != nil {
		s.logger.Warn("warm request failed",
			zap.Int64("item_id", item.ID),
			zap.String("url", target),
			zap.Error(&FetchError{ItemID: item.ID, URL: target, Err: err}),
		)
		metrics.ObserveWarm(target, "error", res.Bytes, res.Duration)
		return false
	}
	s.logger.Debug("item warmed",
		zap.Int64("item_id", item.ID),
		zap.String("url", target),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", res.Duration),
	)
	metrics.ObserveWarm(target, "ok", res.Bytes, res.Duration)
	return true
}

// finish finalizes the run and emits the completion signal. A stop that
// raced with the last batch wins and no completion is emitted.
func (s *Stepper) finish(ctx context.Context, runID string, reason CompletionReason) (Outcome, error) {
	var (
		completion Completion
		stopped    bool
	)
	_, err := s.store.Update(ctx, func(r *Run) error {
		stopped = false
		if r.State.RunID != runID {
			return errSuperseded
		}
		now := s.clock.Now()
		if r.State.Cancelled {
			stopped = true
			stopRun(r, now)
			return nil
		}
		completion = Completion{
			RunID:      r.State.RunID,
			Reason:     reason,
			Processed:  r.State.Processed,
			Failed:     r.State.Failed,
			Config:     r.Config,
			StartedAt:  r.State.StartedAt,
			FinishedAt: now,
		}
		finishRun(r, now)
		return nil
	})
	if errors.Is(err, errSuperseded) {
		return OutcomeSuperseded, nil
	}
	if err != nil {
		return s.retry(ctx, "finish run", err)
	}
	if stopped {
		s.logger.Info("warm run stopped", zap.String("run_id", runID))
		metrics.ObserveRunEnd("stopped")
		return OutcomeStopped, nil
	}

	s.logger.Info("warm run finished",
		zap.String("run_id", runID),
		zap.String("reason", string(reason)),
		zap.Int("processed", completion.Processed),
		zap.Int("failed", completion.Failed),
	)
	metrics.ObserveRunEnd(string(reason))
	metrics.SetRunProcessed(0)
	if s.listener != nil {
		s.listener.OnComplete(ctx, completion)
	}
	return OutcomeFinished, nil
}

// interrupted ends a tick whose context ended mid-batch. The run stays
// scheduled, so the next tick resumes at the cursor.
func (s *Stepper) interrupted(ctx context.Context, runID string) (Outcome, error) {
	err := fmt.Errorf("tick interrupted: %w", ctx.Err())
	s.logger.Warn("tick interrupted, rescheduling", zap.String("run_id", runID), zap.Error(err))
	if schedErr := s.scheduler.ScheduleOnce(context.WithoutCancel(ctx), 0); schedErr != nil {
		return OutcomeRetry, errors.Join(err, fmt.Errorf("schedule resumed tick: %w", schedErr))
	}
	return OutcomeRetry, err
}

// retry requests another tick after RetryDelay. The request outlives ctx so
// a tick that timed out still leaves a tick queued.
func (s *Stepper) retry(ctx context.Context, op string, err error) (Outcome, error) {
	err = fmt.Errorf("%s: %w", op, err)
	s.logger.Warn("tick failed, retrying",
		zap.String("op", op),
		zap.Duration("delay", s.cfg.RetryDelay),
		zap.Error(err),
	)
	if schedErr := s.scheduler.ScheduleOnce(context.WithoutCancel(ctx), s.cfg.RetryDelay); schedErr != nil {
		return OutcomeRetry, errors.Join(err, fmt.Errorf("schedule retry: %w", schedErr))
	}
	return OutcomeRetry, err
}
