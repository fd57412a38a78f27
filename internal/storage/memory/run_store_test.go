package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

func TestRunStoreDefaults(t *testing.T) {
	t.Parallel()

	run, err := NewRunStore().Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, warmer.NewRun(), run)
}

func TestRunStoreUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRunStore()

	run, err := store.Update(ctx, func(r *warmer.Run) error {
		r.State.Processed = 4
		r.State.Cursor = 42
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, run.State.Processed)

	_, err = store.Update(ctx, func(r *warmer.Run) error {
		r.State.Processed = 99
		return errors.New("abort")
	})
	require.Error(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.State.Processed)
	require.Equal(t, int64(42), loaded.State.Cursor)
}

func TestRunStoreUpdateIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRunStore()

	var wg sync.WaitGroup
	for range 50 {
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
	require.Equal(t, 50, run.State.Processed)
}
