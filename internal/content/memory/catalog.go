// Package memory provides an in-memory content catalog.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Catalog is an ordered set of published items. It may change while a run is
// in progress.
type Catalog struct {
	mu    sync.RWMutex
	items []warmer.Item
}

// NewCatalog creates a Catalog holding items. Duplicate IDs keep the last entry.
func NewCatalog(items ...warmer.Item) *Catalog {
	c := &Catalog{}
	c.Put(items...)
	return c
}

// Put inserts or replaces items by ID.
func (c *Catalog) Put(items ...warmer.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		idx, found := c.search(item.ID)
		if found {
			c.items[idx] = item
			continue
		}
		c.items = slices.Insert(c.items, idx, item)
	}
}

// Remove deletes items by ID; missing IDs are ignored.
func (c *Catalog) Remove(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if idx, found := c.search(id); found {
			c.items = slices.Delete(c.items, idx, idx+1)
		}
	}
}

// Next returns up to limit items of kinds with ID >= fromID in ascending order.
func (c *Catalog) Next(_ context.Context, kinds []string, fromID int64, limit int) ([]warmer.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if limit <= 0 {
		return nil, nil
	}
	start, _ := c.search(fromID)
	var out []warmer.Item
	for _, item := range c.items[start:] {
		if !slices.Contains(kinds, item.Kind) {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of items of kind.
func (c *Catalog) Count(_ context.Context, kind string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, item := range c.items {
		if item.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (c *Catalog) search(id int64) (int, bool) {
	idx := sort.Search(len(c.items), func(i int) bool { return c.items[i].ID >= id })
	return idx, idx < len(c.items) && c.items[idx].ID == id
}
