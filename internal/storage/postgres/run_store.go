package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// DefaultRunTable holds the singleton run row.
const DefaultRunTable = "warm_runs"

// RunStore keeps the run as a JSONB document in a single row (id = 1).
// Updates lock the row with SELECT ... FOR UPDATE.
type RunStore struct {
	pool  Pool
	table string
}

// NewRunStore creates a RunStore over pool.
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultRunTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the run table and seeds the singleton row.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	record JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	seed, err := json.Marshal(warmer.NewRun())
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (id, record) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, insert, seed); err != nil {
		return fmt.Errorf("seed %s: %w", s.table, err)
	}
	return nil
}

// Load returns the stored run or warmer.NewRun() when the row is missing.
func (s *RunStore) Load(ctx context.Context) (warmer.Run, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = 1`, s.table)
	return decodeRow(s.pool.QueryRow(ctx, query))
}

// Update applies fn inside a transaction holding the row lock.
func (s *RunStore) Update(ctx context.Context, fn func(*warmer.Run) error) (warmer.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return warmer.Run{}, fmt.Errorf("begin: %w", err)
	}
	run, err := s.apply(ctx, tx, fn)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return warmer.Run{}, errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return warmer.Run{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return warmer.Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

func (s *RunStore) apply(ctx context.Context, tx pgx.Tx, fn func(*warmer.Run) error) (warmer.Run, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = 1 FOR UPDATE`, s.table)
	run, err := decodeRow(tx.QueryRow(ctx, query))
	if err != nil {
		return warmer.Run{}, err
	}
	if err := fn(&run); err != nil {
		return warmer.Run{}, err
	}
	body, err := json.Marshal(run)
	if err != nil {
		return warmer.Run{}, fmt.Errorf("encode run: %w", err)
	}
	upsert := fmt.Sprintf(`
INSERT INTO %s (id, record, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := tx.Exec(ctx, upsert, body); err != nil {
		return warmer.Run{}, fmt.Errorf("write run: %w", err)
	}
	return run, nil
}

func decodeRow(row pgx.Row) (warmer.Run, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return warmer.NewRun(), nil
		}
		return warmer.Run{}, fmt.Errorf("read run: %w", err)
	}
	run := warmer.NewRun()
	if err := json.Unmarshal(body, &run); err != nil {
		return warmer.Run{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}
