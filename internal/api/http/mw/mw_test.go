package mw

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ethtrader/internal/config"
	"ethtrader/internal/metrics"
	"ethtrader/internal/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== CORS ==========

func TestCORS(t *testing.T) {
	t.Run("nil_config_panics", func(t *testing.T) {
		assert.Panics(t, func() { NewCORSConfig(nil) })
	})

	t.Run("defaults_allow_any_origin", func(t *testing.T) {
		h := NewCORSConfig(&config.CORSConfig{}).Handler()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Authorization, Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("preflight_short_circuits", func(t *testing.T) {
		called := false
		h := NewCORSConfig(&config.CORSConfig{
			Origins: []string{"https://desk.example", "https://ops.example"},
			Methods: []string{"GET", "", "POST"},
		}).Handler()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/swap/simulate", nil)
		req.Header.Set("Origin", "https://ops.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	})
}

// ========== Gzip ==========

func TestGzip(t *testing.T) {
	body := strings.Repeat(`{"price":"2500"}`, 100)
	h := NewGzip(0, testutil.NewLogger()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))

	t.Run("compresses_when_accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		zr, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, body, string(plain))
	})

	t.Run("plain_without_accept_encoding", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, body, rec.Body.String())
	})

	t.Run("empty_response_stays_empty", func(t *testing.T) {
		empty := NewGzip(gzip.BestCompression, testutil.NewLogger()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		empty.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Zero(t, rec.Body.Len())
	})
}

// ========== Logging ==========

func TestLogging_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	logMW := NewLogging(testutil.NewLogger(), metrics.New(reg))

	r := chi.NewRouter()
	r.Use(logMW.Handler)
	r.Get("/api/v1/tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("x"))
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tokens/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	expected := `
# HELP ethtrader_http_requests_total HTTP requests by route and status.
# TYPE ethtrader_http_requests_total counter
ethtrader_http_requests_total{method="GET",route="/api/v1/tokens/{id}",status="418"} 3
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "ethtrader_http_requests_total"))
}

func TestLogging_NilMetrics(t *testing.T) {
	h := NewLogging(testutil.NewLogger(), nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil)) })
	assert.Equal(t, "ok", rec.Body.String())
}
