package metrics

import (
	"ethtrader/internal/config"

	"github.com/grafana/pyroscope-go"
)

// InitPProf starts continuous profiling; returns nil, nil when disabled
func InitPProf(instanceID string, cfg *config.PyroscopeConfig) (*pyroscope.Profiler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddr,
		AuthToken:       cfg.AuthToken,
		Logger:          pyroscope.StandardLogger,
		Tags:            profileTags(instanceID, cfg.Tags),
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,

			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,

			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
		},
	})
}

// configured tags win over the instance tag
func profileTags(instanceID string, extra map[string]string) map[string]string {
	tags := map[string]string{"instance": instanceID}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}
