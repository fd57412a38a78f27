package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "runs/b.json", "application/json", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/b.json", uri)
	_, err = store.PutObject(context.Background(), "runs/a.json", "application/json", bytes.NewBufferString("[]"))
	require.NoError(t, err)

	body, ok := store.Object("runs/b.json")
	require.True(t, ok)
	require.Equal(t, "{}", string(body))
	body[0] = 'X'
	again, _ := store.Object("runs/b.json")
	require.Equal(t, "{}", string(again))

	require.Equal(t, []string{"runs/a.json", "runs/b.json"}, store.Paths())
	_, ok = store.Object("missing")
	require.False(t, ok)
}
