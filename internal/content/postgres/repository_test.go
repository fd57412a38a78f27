package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

func TestRepositoryNext(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := New(mock, Config{})
	require.NoError(t, err)

	kinds := []string{"post", "page"}
	mock.ExpectQuery("SELECT id, kind, path").
		WithArgs("published", kinds, int64(11), 2).
		WillReturnRows(mock.NewRows([]string{"id", "kind", "path"}).
			AddRow(int64(11), "post", "/hello/").
			AddRow(int64(12), "page", "/about/"))

	items, err := repo.Next(context.Background(), kinds, 11, 2)
	require.NoError(t, err)
	require.Equal(t, []warmer.Item{
		{ID: 11, Kind: "post", URL: "/hello/"},
		{ID: 12, Kind: "page", URL: "/about/"},
	}, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryNextError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := New(mock, Config{Table: "wp_items", PublishedState: "publish"})
	require.NoError(t, err)

	mock.ExpectQuery("FROM wp_items").WillReturnError(errors.New("connection reset"))
	_, err = repo.Next(context.Background(), []string{"post"}, 0, 10)
	require.ErrorContains(t, err, "query content")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCount(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := New(mock, Config{})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT count").
		WithArgs("published", "page").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := repo.Count(context.Background(), "page")
	require.NoError(t, err)
	require.Equal(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = New(mock, Config{Table: "items where 1=1"})
	require.Error(t, err)
}
