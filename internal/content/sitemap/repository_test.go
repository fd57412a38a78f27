package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	return c.now
}

func newSitemapServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%[1]s/posts.xml</loc></sitemap>
  <sitemap><loc>%[1]s/pages.xml</loc></sitemap>
</sitemapindex>`, srv.URL)
	})
	mux.HandleFunc("/posts.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/hello/</loc></url>
  <url><loc>%[1]s/second/</loc></url>
</urlset>`, srv.URL)
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/about/</loc></url>
  <url><loc>%[1]s/hello/</loc></url>
</urlset>`, srv.URL)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRepositoryExpandsSitemapIndex(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newSitemapServer(t, &hits)
	repo, err := New(Config{URL: srv.URL + "/sitemap.xml"}, &stepClock{now: time.Now()}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	items, err := repo.Next(ctx, []string{"post", "page"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, int64(1), items[0].ID)
	require.Equal(t, srv.URL+"/hello/", items[0].URL)
	require.Equal(t, srv.URL+"/about/", items[2].URL)
	require.Equal(t, "page", items[2].Kind)

	items, err = repo.Next(ctx, []string{"page"}, 2, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(2), items[0].ID)

	items, err = repo.Next(ctx, []string{"page"}, 4, 10)
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = repo.Next(ctx, []string{"post"}, 0, 10)
	require.NoError(t, err)
	require.Empty(t, items)

	n, err := repo.Count(ctx, "page")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = repo.Count(ctx, "post")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRepositoryCachesUntilRefresh(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newSitemapServer(t, &hits)
	clock := &stepClock{now: time.Now()}
	repo, err := New(Config{URL: srv.URL + "/sitemap.xml", Refresh: time.Minute}, clock, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Count(ctx, "page")
	require.NoError(t, err)
	_, err = repo.Next(ctx, []string{"page"}, 0, 5)
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = repo.Count(ctx, "page")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestRepositoryLoadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	repo, err := New(Config{URL: srv.URL + "/sitemap.xml"}, &stepClock{now: time.Now()}, nil)
	require.NoError(t, err)
	_, err = repo.Next(context.Background(), []string{"page"}, 0, 5)
	require.Error(t, err)

	_, err = New(Config{}, &stepClock{}, nil)
	require.Error(t, err)
}

func TestRepositoryKeepsIDsAcrossRefresh(t *testing.T) {
	t.Parallel()

	var paths atomic.Pointer[[]string]
	paths.Store(&[]string{"/a/", "/b/", "/c/"})
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
		for _, p := range *paths.Load() {
			fmt.Fprintf(w, "<url><loc>%s%s</loc></url>", srv.URL, p)
		}
		fmt.Fprint(w, "</urlset>")
	}))
	t.Cleanup(srv.Close)

	clock := &stepClock{now: time.Now()}
	repo, err := New(Config{URL: srv.URL + "/sitemap.xml", Refresh: time.Minute}, clock, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// A run has warmed /b/ (ID 2) when the sitemap changes underneath it.
	items, err := repo.Next(ctx, []string{"page"}, 2, 1)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/b/", items[0].URL)

	paths.Store(&[]string{"/new/", "/b/", "/c/", "/d/"})
	clock.now = clock.now.Add(2 * time.Minute)

	items, err = repo.Next(ctx, []string{"page"}, 2, 10)
	require.NoError(t, err)
	got := make(map[int64]string, len(items))
	var ids []int64
	for _, item := range items {
		got[item.ID] = item.URL
		ids = append(ids, item.ID)
	}
	require.Equal(t, []int64{2, 3, 4, 5}, ids)
	require.Equal(t, srv.URL+"/b/", got[2])
	require.Equal(t, srv.URL+"/c/", got[3])
	require.Equal(t, srv.URL+"/new/", got[4])
	require.Equal(t, srv.URL+"/d/", got[5])

	items, err = repo.Next(ctx, []string{"page"}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), items[0].ID)

	n, err := repo.Count(ctx, "page")
	require.NoError(t, err)
	require.Equal(t, 4, n)

	// A URL that comes back after removal keeps its first ID.
	paths.Store(&[]string{"/a/", "/b/"})
	clock.now = clock.now.Add(2 * time.Minute)
	items, err = repo.Next(ctx, []string{"page"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(1), items[0].ID)
	require.Equal(t, srv.URL+"/a/", items[0].URL)
}
