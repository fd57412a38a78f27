// Package redis keeps the run record in Redis so several processes can share
// one run.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// DefaultPrefix namespaces the run key.
const DefaultPrefix = "cachewarmer"

const defaultMaxRetries = 10

// ErrContention is returned when optimistic updates keep colliding.
var ErrContention = errors.New("run update contention")

// Config controls the Redis run store.
type Config struct {
	Prefix     string
	MaxRetries int
}

// RunStore stores the run as JSON under "<prefix>:run" and updates it with
// WATCH/MULTI so concurrent writers never lose each other's changes.
type RunStore struct {
	client     *redis.Client
	key        string
	maxRetries int
}

// NewRunStore creates a RunStore over client.
func NewRunStore(client *redis.Client, cfg Config) (*RunStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &RunStore{client: client, key: prefix + ":run", maxRetries: retries}, nil
}

// Key returns the Redis key holding the run.
func (s *RunStore) Key() string {
	return s.key
}

// Load returns the stored run or warmer.NewRun() when the key is missing.
func (s *RunStore) Load(ctx context.Context) (warmer.Run, error) {
	return s.get(ctx, s.client)
}

// Update applies fn inside an optimistic transaction, retrying when the key
// changes underneath it.
func (s *RunStore) Update(ctx context.Context, fn func(*warmer.Run) error) (warmer.Run, error) {
	var out warmer.Run
	txf := func(tx *redis.Tx) error {
		run, err := s.get(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(&run); err != nil {
			return err
		}
		body, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("encode run: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, body, 0)
			return nil
		}); err != nil {
			return err //nolint:wrapcheck // TxFailedErr must stay comparable
		}
		out = run
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return warmer.Run{}, fmt.Errorf("update run: %w", err)
	}
	return warmer.Run{}, ErrContention
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RunStore) get(ctx context.Context, g getter) (warmer.Run, error) {
	body, err := g.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return warmer.NewRun(), nil
	}
	if err != nil {
		return warmer.Run{}, fmt.Errorf("get run: %w", err)
	}
	run := warmer.NewRun()
	if err := json.Unmarshal(body, &run); err != nil {
		return warmer.Run{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}
