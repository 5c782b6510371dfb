package config

import (
	"fmt"

	"github.com/marmos91/httpfs/pkg/adapter"
	httpadapter "github.com/marmos91/httpfs/pkg/adapter/http"
	"github.com/marmos91/httpfs/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// A nil httpMetrics disables adapter metrics.
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		adapters = append(adapters, httpadapter.New(cfg.Adapters.HTTP, httpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
