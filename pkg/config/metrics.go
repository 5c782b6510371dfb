package config

import (
	"github.com/marmos91/httpfs/pkg/metrics"
	promMetrics "github.com/marmos91/httpfs/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the HTTP adapter (never nil, no-op if disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and a
// metrics server is created. Otherwise no-op collectors are returned.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
