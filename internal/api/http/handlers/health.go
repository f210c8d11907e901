package handlers

import (
	"context"
	"net/http"
	"time"

	"ethtrader/pkg/httputil"
)

func (a *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		a.Log.Errorf("Healthz handler error: %s", err.Error())
	}
	a.Log.Debug("Healthz handler success")
}

// Check health external services/clients
func (a *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := a.health.CheckDependency(ctx); err != nil {
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			a.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]any{
		"dependencies": "healthy",
		"checked":      a.health.Dependencies(),
	}, nil); err != nil {
		a.Log.Errorf("Readiness handler error: %s", err.Error())
	}

	a.Log.Debug("Readiness handler success")
}
