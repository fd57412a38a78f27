// Package notify delivers run completion events to downstream consumers.
//
// The stepper calls a single warmer.CompletionListener inline; Fanout lets the
// service attach any number of them (log, publish, archive) behind that one
// hook. Each listener gets its own timeout and a failing listener never
// affects the others or the run.
package notify

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// EventCompleted is the event name attached to published completions.
const EventCompleted = "warm.completed"

const defaultListenerTimeout = 10 * time.Second

// Publisher sends a payload to a message bus and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Func adapts a plain function to warmer.CompletionListener.
type Func func(ctx context.Context, completion warmer.Completion)

// OnComplete calls f.
func (f Func) OnComplete(ctx context.Context, completion warmer.Completion) {
	f(ctx, completion)
}

// Fanout forwards a completion to every listener in order.
type Fanout struct {
	listeners []warmer.CompletionListener
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFanout builds a Fanout. A timeout <= 0 uses the default of 10s.
func NewFanout(timeout time.Duration, logger *zap.Logger, listeners ...warmer.CompletionListener) *Fanout {
	if timeout <= 0 {
		timeout = defaultListenerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]warmer.CompletionListener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			out = append(out, l)
		}
	}
	return &Fanout{listeners: out, timeout: timeout, logger: logger}
}

// Len reports the number of attached listeners.
func (f *Fanout) Len() int {
	return len(f.listeners)
}

// OnComplete implements warmer.CompletionListener.
func (f *Fanout) OnComplete(ctx context.Context, completion warmer.Completion) {
	for _, l := range f.listeners {
		f.deliver(ctx, l, completion)
	}
}

func (f *Fanout) deliver(ctx context.Context, l warmer.CompletionListener, completion warmer.Completion) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("completion listener panicked",
				zap.String("run_id", completion.RunID),
				zap.Any("panic", r),
			)
		}
	}()
	l.OnComplete(ctx, completion)
}

// LogListener writes each completion as a structured log line.
type LogListener struct {
	logger *zap.Logger
}

// NewLogListener wires a zap logger to the listener interface.
func NewLogListener(logger *zap.Logger) *LogListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogListener{logger: logger}
}

// OnComplete implements warmer.CompletionListener.
func (l *LogListener) OnComplete(_ context.Context, c warmer.Completion) {
	l.logger.Info("warm run completed",
		zap.String("run_id", c.RunID),
		zap.String("reason", string(c.Reason)),
		zap.Int("processed", c.Processed),
		zap.Int("failed", c.Failed),
		zap.Int("max_items", c.Config.MaxItems),
		zap.Int("batch_size", c.Config.BatchSize),
		zap.Duration("elapsed", c.FinishedAt.Sub(c.StartedAt)),
	)
}
