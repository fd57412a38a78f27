package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runScheduler(t *testing.T, s *Scheduler, handler HandlerFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, handler)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestScheduleOnceRunsHandler(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	var calls atomic.Int32
	runScheduler(t, s, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.ScheduleOnce(context.Background(), 0))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduleOnceCoalescesPendingTicks(t *testing.T) {
	t.Parallel()

	s := New(nil)
	for range 3 {
		require.NoError(t, s.ScheduleOnce(context.Background(), 0))
	}

	var calls atomic.Int32
	runScheduler(t, s, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestScheduleOnceDelayed(t *testing.T) {
	t.Parallel()

	s := New(nil)
	fired := make(chan time.Time, 1)
	runScheduler(t, s, func(context.Context) error {
		fired <- time.Now()
		return nil
	})

	start := time.Now()
	require.NoError(t, s.ScheduleOnce(context.Background(), 30*time.Millisecond))

	select {
	case at := <-fired:
		require.GreaterOrEqual(t, at.Sub(start), 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed tick never fired")
	}
}

func TestCancelDropsPendingAndDelayedTicks(t *testing.T) {
	t.Parallel()

	s := New(nil)
	require.NoError(t, s.ScheduleOnce(context.Background(), 0))
	require.NoError(t, s.ScheduleOnce(context.Background(), 20*time.Millisecond))
	s.Cancel()

	var calls atomic.Int32
	runScheduler(t, s, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(0), calls.Load())

	require.NoError(t, s.ScheduleOnce(context.Background(), 0))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandlerCanRescheduleItself(t *testing.T) {
	t.Parallel()

	s := New(nil)
	var calls atomic.Int32
	runScheduler(t, s, func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return s.ScheduleOnce(ctx, 0)
		}
		return nil
	})

	require.NoError(t, s.ScheduleOnce(context.Background(), 0))
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestScheduleOnceErrors(t *testing.T) {
	t.Parallel()

	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.ScheduleOnce(ctx, 0), context.Canceled)

	s.Close()
	s.Close()
	require.ErrorIs(t, s.ScheduleOnce(context.Background(), 0), ErrClosed)
}
