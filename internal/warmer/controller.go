package warmer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// StartRequest carries the parameters of a start command. Nil fields fall
// back to the controller defaults.
type StartRequest struct {
	MaxItems  *int `json:"max_items,omitempty"`
	DelayMs   *int `json:"delay_ms,omitempty"`
	BatchSize *int `json:"batch_size,omitempty"`
}

func (r StartRequest) resolve(defaults RunConfig) RunConfig {
	cfg := defaults
	if r.MaxItems != nil {
		cfg.MaxItems = *r.MaxItems
	}
	if r.DelayMs != nil {
		cfg.DelayMs = *r.DelayMs
	}
	if r.BatchSize != nil {
		cfg.BatchSize = *r.BatchSize
	}
	return cfg
}

// ControllerConfig controls Controller behavior.
type ControllerConfig struct {
	Kinds    []string
	Defaults RunConfig
	Limits   Limits
}

// ControllerDeps bundles the collaborators of a Controller.
type ControllerDeps struct {
	Store     RunStore
	Content   ContentRepository
	Scheduler Scheduler
	Clock     Clock
	IDs       IDGenerator
}

// Controller handles start, stop and status commands.
type Controller struct {
	store     RunStore
	content   ContentRepository
	scheduler Scheduler
	clock     Clock
	ids       IDGenerator
	cfg       ControllerConfig
	logger    *zap.Logger
}

// NewController wires a Controller.
func NewController(deps ControllerDeps, cfg ControllerConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = DefaultKinds
	}
	if cfg.Defaults.BatchSize <= 0 {
		cfg.Defaults.BatchSize = DefaultBatchSize
	}
	return &Controller{
		store:     deps.Store,
		content:   deps.Content,
		scheduler: deps.Scheduler,
		clock:     deps.Clock,
		ids:       deps.IDs,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start resets the run to the requested configuration and requests the first
// tick. Starting while a run is active restarts it from zero.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Run, error) {
	cfg, err := Sanitize(req.resolve(c.cfg.Defaults), c.cfg.Limits)
	if err != nil {
		return Run{}, err
	}
	runID, err := c.ids.NewID()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run, err := c.store.Update(ctx, func(r *Run) error {
		beginRun(r, cfg, runID, c.clock.Now())
		return nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("persist run: %w", err)
	}
	if err := c.scheduler.ScheduleOnce(ctx, 0); err != nil {
		return run, fmt.Errorf("schedule first tick: %w", err)
	}
	c.logger.Info("warm run started",
		zap.String("run_id", runID),
		zap.Int("max_items", cfg.MaxItems),
		zap.Int("delay_ms", cfg.DelayMs),
		zap.Int("batch_size", cfg.BatchSize),
	)
	return run, nil
}

// Stop requests cancellation and drops any pending tick. An in-flight tick
// observes the request when its batch ends.
func (c *Controller) Stop(ctx context.Context) (Run, error) {
	run, err := c.store.Update(ctx, func(r *Run) error {
		r.State.Cancelled = true
		r.State.Scheduled = false
		r.State.Status = StatusNotOperating
		r.State.UpdatedAt = c.clock.Now()
		return nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("persist stop: %w", err)
	}
	c.scheduler.Cancel()
	c.logger.Info("warm run stop requested", zap.String("run_id", run.State.RunID))
	return run, nil
}

// Status reports progress. A stored MaxItems of 0 is resolved to the number
// of items currently published.
func (c *Controller) Status(ctx context.Context) (Report, error) {
	run, err := c.store.Load(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load run: %w", err)
	}
	maxItems := run.Config.MaxItems
	if maxItems == 0 {
		if maxItems, err = c.total(ctx); err != nil {
			return Report{}, err
		}
	}
	return Report{
		Status:             run.State.Status,
		ProcessedCount:     run.State.Processed,
		MaxItems:           maxItems,
		ProgressPercentage: Percentage(run.State.Processed, maxItems),
		FailedCount:        run.State.Failed,
		RunID:              run.State.RunID,
	}, nil
}

func (c *Controller) total(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range c.cfg.Kinds {
		n, err := c.content.Count(ctx, kind)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", kind, err)
		}
		total += n
	}
	return total, nil
}

// Reconcile clears a scheduled flag left behind by a finished run.
func (c *Controller) Reconcile(ctx context.Context) error {
	_, err := c.store.Update(ctx, func(r *Run) error {
		if r.State.Status != StatusFinished || !r.State.Scheduled {
			return errUnchanged
		}
		r.State.Scheduled = false
		r.State.UpdatedAt = c.clock.Now()
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return fmt.Errorf("reconcile run: %w", err)
	}
	return nil
}

// Resume requests a tick when the stored run is still active, for example
// after a process restart. It reports whether a tick was requested.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	run, err := c.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load run: %w", err)
	}
	if !run.Active() {
		return false, nil
	}
	if err := c.scheduler.ScheduleOnce(ctx, 0); err != nil {
		return false, fmt.Errorf("schedule resumed tick: %w", err)
	}
	c.logger.Info("warm run resumed",
		zap.String("run_id", run.State.RunID),
		zap.Int64("cursor", run.State.Cursor),
		zap.Int("processed", run.State.Processed),
	)
	return true, nil
}
