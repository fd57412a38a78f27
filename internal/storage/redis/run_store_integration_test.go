//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())
	})
	return client
}

func TestRunStore_Integration(t *testing.T) {
	client := setupRedisContainer(t)
	store, err := NewRunStore(client, Config{Prefix: "it", MaxRetries: 100})
	require.NoError(t, err)

	exerciseRunStore(t, store)

	concurrent, err := NewRunStore(client, Config{Prefix: "it-concurrent", MaxRetries: 100})
	require.NoError(t, err)
	exerciseConcurrentUpdates(t, concurrent)
}
