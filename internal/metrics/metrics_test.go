package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestMiddlewareLabelsByRoutePattern uses the chi pattern, not the raw path.
func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/series/{series_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	for _, path := range []string{"/v1/series/a", "/v1/series/b", "/ok"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/v1/series/{series_id}", "404")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/ok", "200")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	require.Equal(t, 2, testutil.CollectAndCount(m.requestDuration, "http_request_duration_seconds"))
}

// TestNewHTTPRejectsDuplicateRegistration surfaces registry conflicts.
func TestNewHTTPRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewHTTP(reg)
	require.NoError(t, err)
	_, err = NewHTTP(reg)
	require.Error(t, err)
}

// TestHandlerExposesRegistry serves the text exposition format.
func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)
	m.Observe(http.MethodPost, "/v1/series", http.StatusCreated, 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `http_requests_total{code="201",method="POST",route="/v1/series"} 1`)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
