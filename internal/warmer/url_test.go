package warmer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseURLResolver(t *testing.T) {
	t.Parallel()

	r, err := NewBaseURLResolver("https://Example.com/blog/")
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"/2024/05/hello/", "https://example.com/2024/05/hello/"},
		{"about", "https://example.com/blog/about"},
		{"?p=12", "https://example.com/blog/?p=12"},
		{"HTTPS://Other.example:443/x#frag", "https://other.example/x"},
		{"http://site.test:80/y", "http://site.test/y"},
		{"http://site.test:8080/y", "http://site.test:8080/y"},
	}
	for _, tc := range tests {
		got, err := r.Resolve(Item{ID: 1, URL: tc.in})
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err = r.Resolve(Item{ID: 2})
	require.Error(t, err)
}

func TestBaseURLResolverWithoutBase(t *testing.T) {
	t.Parallel()

	r, err := NewBaseURLResolver("")
	require.NoError(t, err)

	got, err := r.Resolve(Item{ID: 1, URL: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", got)

	_, err = r.Resolve(Item{ID: 2, URL: "/relative"})
	require.Error(t, err)

	_, err = NewBaseURLResolver("/not-absolute")
	require.Error(t, err)
}
