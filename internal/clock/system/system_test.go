package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestClockSleep(t *testing.T) {
	t.Parallel()

	clk := New()
	start := time.Now()
	clk.Sleep(context.Background(), 10*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	clk.Sleep(ctx, time.Minute)
	require.Less(t, time.Since(start), time.Second)

	start = time.Now()
	clk.Sleep(context.Background(), -time.Second)
	require.Less(t, time.Since(start), time.Second)
}
