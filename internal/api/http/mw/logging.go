package mw

import (
	"net/http"
	"time"

	"ethtrader/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gitlab.com/nevasik7/alerting/logger"
)

type LoggingMiddleware struct {
	Log     logger.Logger
	Metrics *metrics.Metrics // optional
}

func NewLogging(log logger.Logger, m *metrics.Metrics) *LoggingMiddleware {
	return &LoggingMiddleware{Log: log, Metrics: m}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)

		m.Metrics.ObserveHTTP(r.Method, routePattern(r), lrw.status, dur)

		m.Log.Infof("http_request method=%s path=%s status=%d size=%d dur_ms=%d ip=%s req_id=%s",
			r.Method,
			r.URL.Path,
			lrw.status,
			lrw.size,
			dur.Milliseconds(),
			clientIP(r),
			middleware.GetReqID(r.Context()),
		)
	})
}

// routePattern keeps metric label cardinality bounded
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type loggingRW struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingRW) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *loggingRW) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
