package service

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/nevasik7/alerting/logger"
)

// HealthChecker is anything with a cheap liveness probe (RPC pool, redis, ClickHouse, NATS)
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Dependency struct {
	Name  string
	Check HealthChecker
}

type HealthService struct {
	log  logger.Logger
	deps []Dependency
}

func NewHealthService(log logger.Logger, deps ...Dependency) *HealthService {
	active := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		if d.Check != nil {
			active = append(active, d)
		}
	}
	return &HealthService{log: log, deps: active}
}

// CheckDependency probes every registered dependency and joins the failures
func (h *HealthService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, len(h.deps))

	for _, d := range h.deps {
		if err := d.Check.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("%s connection error: %v", d.Name, err))
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	h.log.Debugf("All dependency check passed")
	return nil
}

func (h *HealthService) Dependencies() []string {
	names := make([]string, len(h.deps))
	for i, d := range h.deps {
		names[i] = d.Name
	}
	return names
}
