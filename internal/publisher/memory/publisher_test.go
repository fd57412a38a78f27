package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsInOrder(t *testing.T) {
	t.Parallel()

	pub := New(0)
	id1, err := pub.Publish(context.Background(), "warm.completed", map[string]string{"run_id": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "warm.completed", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, map[string]string{"run_id": "a"}, msgs[0].Payload)

	msgs[0].Topic = "modified"
	require.Equal(t, "warm.completed", pub.Messages()[0].Topic)
}

func TestPublisherEvictsOldest(t *testing.T) {
	t.Parallel()

	pub := New(2)
	for i := 0; i < 3; i++ {
		_, err := pub.Publish(context.Background(), "warm.completed", i)
		require.NoError(t, err)
	}
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "memory-2", msgs[0].ID)
	require.Equal(t, 2, msgs[1].Payload)
}

func TestPublisherRejectsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := New(1)
	_, err := pub.Publish(ctx, "warm.completed", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, pub.Messages())
}
