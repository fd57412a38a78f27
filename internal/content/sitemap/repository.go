// Package sitemap discovers content items from a site's XML sitemap.
package sitemap

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Defaults for Config.
const (
	DefaultKind    = "page"
	DefaultRefresh = 5 * time.Minute
	DefaultTimeout = 30 * time.Second
)

// Config controls sitemap discovery.
type Config struct {
	// URL of the sitemap or sitemap index.
	URL string
	// Kind is assigned to every discovered item.
	Kind      string
	Refresh   time.Duration
	UserAgent string
	Timeout   time.Duration
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Repository implements warmer.ContentRepository over sitemap entries. A URL
// keeps the ID it was first seen with for the life of the Repository; URLs that
// appear on a refresh get the next unused IDs. IDs are never reassigned.
// The first load numbers from 1 in document order.
type Repository struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger

	mu       sync.Mutex
	items    []warmer.Item
	ids      map[string]int64
	lastID   int64
	loadedAt time.Time
}

// New creates a Repository.
func New(cfg Config, clock Clock, logger *zap.Logger) (*Repository, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("sitemap url is required")
	}
	if cfg.Kind == "" {
		cfg.Kind = DefaultKind
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{cfg: cfg, clock: clock, logger: logger, ids: make(map[string]int64)}, nil
}

// Next returns up to limit items with ID >= fromID.
func (r *Repository) Next(ctx context.Context, kinds []string, fromID int64, limit int) ([]warmer.Item, error) {
	items, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(kinds, r.cfg.Kind) || limit <= 0 {
		return nil, nil
	}
	start, _ := slices.BinarySearchFunc(items, fromID, func(item warmer.Item, id int64) int {
		return cmp.Compare(item.ID, id)
	})
	end := min(start+limit, len(items))
	return slices.Clone(items[start:end]), nil
}

// Count returns the number of sitemap entries when kind matches.
func (r *Repository) Count(ctx context.Context, kind string) (int, error) {
	items, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if kind != r.cfg.Kind {
		return 0, nil
	}
	return len(items), nil
}

func (r *Repository) snapshot(ctx context.Context) ([]warmer.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	if r.items != nil && now.Sub(r.loadedAt) < r.cfg.Refresh {
		return r.items, nil
	}
	locs, err := r.load(ctx)
	if err != nil {
		if r.items != nil {
			r.logger.Warn("sitemap refresh failed, serving cached entries", zap.Error(err))
			return r.items, nil
		}
		return nil, err
	}
	items := r.number(locs)
	r.items = items
	r.loadedAt = now
	r.logger.Debug("sitemap loaded", zap.String("url", r.cfg.URL), zap.Int("entries", len(items)))
	return items, nil
}

// number maps locs onto IDs, assigning fresh IDs to unseen URLs, and returns
// the items ordered by ID. Callers hold r.mu.
func (r *Repository) number(locs []string) []warmer.Item {
	items := make([]warmer.Item, 0, len(locs))
	for _, loc := range locs {
		id, ok := r.ids[loc]
		if !ok {
			r.lastID++
			id = r.lastID
			r.ids[loc] = id
		}
		items = append(items, warmer.Item{ID: id, Kind: r.cfg.Kind, URL: loc})
	}
	slices.SortFunc(items, func(a, b warmer.Item) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return items
}

// load returns the distinct entry URLs in document order.
func (r *Repository) load(ctx context.Context) ([]string, error) {
	c := colly.NewCollector(colly.Async(false))
	if r.cfg.UserAgent != "" {
		c.UserAgent = r.cfg.UserAgent
	}
	c.SetRequestTimeout(r.cfg.Timeout)

	var (
		locs     []string
		seen     = make(map[string]struct{})
		fetchErr error
	)
	c.OnXML("//sitemapindex/sitemap/loc", func(e *colly.XMLElement) {
		if loc := strings.TrimSpace(e.Text); loc != "" {
			if err := e.Request.Visit(loc); err != nil {
				r.logger.Warn("nested sitemap skipped", zap.String("url", loc), zap.Error(err))
			}
		}
	})
	c.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if loc == "" {
			return
		}
		if _, dup := seen[loc]; dup {
			return
		}
		seen[loc] = struct{}{}
		locs = append(locs, loc)
	})
	c.OnError(func(resp *colly.Response, err error) {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("fetch %s: %w", resp.Request.URL, err)
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(r.cfg.URL)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sitemap load canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit sitemap: %w", err)
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return locs, nil
}
