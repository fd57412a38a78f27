package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// setupTestRedis connects to REDIS_ADDR (default localhost:6379) and skips
// when no server answers.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestNewRunStore(t *testing.T) {
	_, err := NewRunStore(nil, Config{})
	require.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	store, err := NewRunStore(client, Config{Prefix: "site-a"})
	require.NoError(t, err)
	require.Equal(t, "site-a:run", store.Key())

	store, err = NewRunStore(client, Config{})
	require.NoError(t, err)
	require.Equal(t, "cachewarmer:run", store.Key())
}

func TestRunStoreLoadUpdate(t *testing.T) {
	client := setupTestRedis(t)
	store, err := NewRunStore(client, Config{Prefix: "test"})
	require.NoError(t, err)
	exerciseRunStore(t, store)
}

func TestRunStoreConcurrentUpdates(t *testing.T) {
	client := setupTestRedis(t)
	store, err := NewRunStore(client, Config{Prefix: "test", MaxRetries: 100})
	require.NoError(t, err)
	exerciseConcurrentUpdates(t, store)
}

func exerciseRunStore(t *testing.T, store *RunStore) {
	t.Helper()
	ctx := context.Background()

	run, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, warmer.NewRun(), run)

	_, err = store.Update(ctx, func(r *warmer.Run) error {
		r.State.RunID = "run-1"
		r.State.Cursor = 12
		r.State.Processed = 3
		r.State.Scheduled = true
		r.State.Status = warmer.StatusInProgress
		return nil
	})
	require.NoError(t, err)

	sentinel := errors.New("abort")
	_, err = store.Update(ctx, func(r *warmer.Run) error {
		r.State.Processed = 100
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	run, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "run-1", run.State.RunID)
	require.Equal(t, int64(12), run.State.Cursor)
	require.Equal(t, 3, run.State.Processed)
	require.True(t, run.Active())
}

func exerciseConcurrentUpdates(t *testing.T, store *RunStore) {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, func(r *warmer.Run) error {
				r.State.Processed++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	run, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, run.State.Processed)
}
