package http

import (
	"net/http"

	"ethtrader/internal/api/http/handlers"
	"ethtrader/internal/api/http/mw"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func BuildRouter(
	api *handlers.Handler,
	metricsHandler http.Handler,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if gzipMW != nil {
		r.Use(gzipMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	// tech endpoint not auth
	r.Get("/healthz", api.Healthz)
	r.Get("/readiness", api.Readiness)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// api endpoint with rate limit and jwt
	r.Route("/api/v1", func(protected chi.Router) {
		if rateLimitMW != nil {
			protected.Use(rateLimitMW.Handler)
		}
		if jwtMW != nil {
			protected.Use(jwtMW.Handler)
		}

		protected.Get("/balance", api.GetBalance)
		protected.Get("/price", api.GetPrice)
		protected.Post("/swap/simulate", api.SimulateSwap)
		protected.Route("/tokens", func(tt chi.Router) {
			tt.Get("/", api.ListTokens)
			tt.Get("/stats", api.TokenStats)
		})
	})

	return r
}
