// Package postgres reads published content items from Postgres.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	pgstore "github.com/JakeFAU/cache-warmer/internal/storage/postgres"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Defaults for Config.
const (
	DefaultTable          = "content_items"
	DefaultPublishedState = "published"
)

// Config names the content table and its published state value.
type Config struct {
	Table          string
	PublishedState string
}

// Repository implements warmer.ContentRepository over a
// content_items(id, kind, state, path) table.
type Repository struct {
	pool      pgstore.Pool
	table     string
	published string
}

// New creates a Repository.
func New(pool pgstore.Pool, cfg Config) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.PublishedState == "" {
		cfg.PublishedState = DefaultPublishedState
	}
	if err := pgstore.ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	return &Repository{pool: pool, table: cfg.Table, published: cfg.PublishedState}, nil
}

// Next returns up to limit published items with id >= fromID by ascending id.
func (r *Repository) Next(ctx context.Context, kinds []string, fromID int64, limit int) ([]warmer.Item, error) {
	query := fmt.Sprintf(`
SELECT id, kind, path
FROM %s
WHERE state = $1 AND kind = ANY($2) AND id >= $3
ORDER BY id ASC
LIMIT $4`, r.table)
	rows, err := r.pool.Query(ctx, query, r.published, kinds, fromID, limit)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (warmer.Item, error) {
		var item warmer.Item
		err := row.Scan(&item.ID, &item.Kind, &item.URL)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}
	return items, nil
}

// Count returns the number of published items of kind.
func (r *Repository) Count(ctx context.Context, kind string) (int, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE state = $1 AND kind = $2`, r.table)
	var n int64
	if err := r.pool.QueryRow(ctx, query, r.published, kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return int(n), nil
}
