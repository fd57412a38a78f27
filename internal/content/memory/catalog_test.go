package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

func ids(items []warmer.Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestCatalogNextOrdersAndFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := NewCatalog(
		warmer.Item{ID: 12, Kind: "post", URL: "/c"},
		warmer.Item{ID: 3, Kind: "page", URL: "/a"},
		warmer.Item{ID: 7, Kind: "attachment", URL: "/b"},
		warmer.Item{ID: 20, Kind: "post", URL: "/d"},
	)
	kinds := []string{"post", "page"}

	got, err := c.Next(ctx, kinds, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 12, 20}, ids(got))

	got, err = c.Next(ctx, kinds, 12, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{12}, ids(got))

	got, err = c.Next(ctx, kinds, 21, 5)
	require.NoError(t, err)
	require.Empty(t, got)

	n, err := c.Count(ctx, "post")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCatalogEvolvesBetweenQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kinds := []string{"post"}

	c := NewCatalog(warmer.Item{ID: 1, Kind: "post"}, warmer.Item{ID: 5, Kind: "post"})
	c.Put(warmer.Item{ID: 3, Kind: "post"}, warmer.Item{ID: 5, Kind: "post", URL: "/new"})
	c.Remove(1, 99)

	got, err := c.Next(ctx, kinds, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 5}, ids(got))
	require.Equal(t, "/new", got[1].URL)
}
