package http

import (
	"context"
	"net/http"

	"ethtrader/internal/api/http/handlers"
	"ethtrader/internal/api/http/mw"
	"ethtrader/internal/config"
	"ethtrader/internal/metrics"
	"ethtrader/internal/security"
	rds "ethtrader/internal/stores/redis"

	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/nevasik7/alerting/logger"
)

type ServerDeps struct {
	Logger   logger.Logger
	Cfg      *config.Config
	Handlers handlers.Deps

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer     // nil serves the default registry
	Redis    *rds.Client             // required when rate limit is enabled
	Verifier *security.RS256Verifier // required when jwt is enabled
}

type Server struct {
	log logger.Logger
	srv *http.Server
}

func NewServer(d *ServerDeps) (*Server, error) {
	cfg := d.Cfg

	d.Handlers.Log = d.Logger
	api := handlers.NewHandler(d.Handlers)

	var (
		rateLimitMW *mw.RateLimitMiddleware
		jwtMW       *mw.JWTMiddleware
		corsMW      *mw.CORSMiddleware
		err         error
	)

	if cfg.Security.JWT.Enabled {
		if jwtMW, err = mw.NewJWTMiddleware(d.Verifier); err != nil {
			return nil, err
		}
		d.Logger.Info("Successfully initialize JWT middleware")
	}
	if cfg.RateLimit.Enabled {
		rateLimitMW = mw.NewRateLimit(&cfg.RateLimit, d.Redis, d.Verifier)
		d.Logger.Infof("Successfully initialize rate limit, ip=%d/s jwt=%d/s",
			cfg.RateLimit.ByIP.RefillPerSec, cfg.RateLimit.ByJWT.RefillPerSec)
	}
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORSConfig(&cfg.API.HTTP.CORS)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Prometheus {
		metricsHandler = metrics.Handler(d.Gatherer)
	}

	router := BuildRouter(
		api,
		metricsHandler,
		mw.NewLogging(d.Logger, d.Metrics),
		mw.NewGzip(0, d.Logger),
		rateLimitMW,
		jwtMW,
		corsMW,
	)

	return &Server{
		log: d.Logger,
		srv: &http.Server{
			Addr:         cfg.API.HTTP.Addr,
			Handler:      router,
			ReadTimeout:  cfg.API.HTTP.ReadTimeout,
			WriteTimeout: cfg.API.HTTP.WriteTimeout,
			IdleTimeout:  cfg.API.HTTP.IdleTimeout,
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
