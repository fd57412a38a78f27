package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/accepted", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/conflict", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	before202 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202"))
	before409 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "409"))

	for _, path := range []string{"/accepted", "/conflict"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	}

	require.Equal(t, before202+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202")))
	require.Equal(t, before409+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "409")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
