// Package memory provides an in-process tick scheduler.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned when scheduling on a closed Scheduler.
var ErrClosed = errors.New("scheduler closed")

// HandlerFunc runs one tick.
type HandlerFunc func(ctx context.Context) error

// Scheduler delivers ticks to a single handler goroutine. Requests made while
// a tick is already pending coalesce into that tick; Cancel drops everything
// pending, delayed ticks included.
type Scheduler struct {
	ticks chan uint64

	mu      sync.Mutex
	gen     uint64
	pending bool
	closed  bool
	timers  map[*time.Timer]struct{}

	logger *zap.Logger
}

// New constructs a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		ticks:  make(chan uint64, 1),
		timers: make(map[*time.Timer]struct{}),
		logger: logger,
	}
}

// ScheduleOnce requests a tick after delay.
func (s *Scheduler) ScheduleOnce(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("schedule canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if delay <= 0 {
		s.enqueueLocked()
		return nil
	}
	gen := s.gen
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, timer)
		if s.closed || s.gen != gen {
			return
		}
		s.enqueueLocked()
	})
	s.timers[timer] = struct{}{}
	return nil
}

// Cancel drops pending and delayed ticks. A tick already running is not
// interrupted.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.pending = false
	s.stopTimersLocked()
	select {
	case <-s.ticks:
	default:
	}
}

// Close cancels pending ticks and rejects further requests.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.stopTimersLocked()
}

// Run delivers ticks to handler until ctx ends. Handler errors are logged;
// retry decisions belong to the handler.
func (s *Scheduler) Run(ctx context.Context, handler HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case gen := <-s.ticks:
			s.mu.Lock()
			stale := gen != s.gen
			if !stale {
				s.pending = false
			}
			s.mu.Unlock()
			if stale {
				continue
			}
			if err := handler(ctx); err != nil {
				s.logger.Warn("tick handler failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) enqueueLocked() {
	if s.pending {
		return
	}
	select {
	case s.ticks <- s.gen:
		s.pending = true
	default:
		s.logger.Debug("tick already queued")
	}
}

func (s *Scheduler) stopTimersLocked() {
	for timer := range s.timers {
		timer.Stop()
		delete(s.timers, timer)
	}
}
