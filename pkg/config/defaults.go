package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/httpfs/pkg/adapter/http"
	"github.com/marmos91/httpfs/pkg/metrics"
	"github.com/marmos91/httpfs/pkg/rwlock"
)

// DefaultStoreRoot is the directory served when none is configured: the
// process working directory.
const DefaultStoreRoot = "."

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyLocksDefaults(&cfg.Locks)
	applyHTTPDefaults(&cfg.Adapters.HTTP)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = metrics.DefaultPort
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultStoreRoot
	}
}

func applyLocksDefaults(cfg *LocksConfig) {
	if cfg.OvertakeBound == 0 {
		cfg.OvertakeBound = rwlock.DefaultOvertakeBound
	}
}

// applyHTTPDefaults mirrors the adapter's own defaults so they show up in
// generated config files and validation messages.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = httpadapter.DefaultPort
	}
	if cfg.Threads == 0 {
		cfg.Threads = httpadapter.DefaultThreads
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = cfg.Threads
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = httpadapter.DefaultShutdownTimeout
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = httpadapter.DefaultMetricsLogInterval
	}
	// ReadTimeout and WriteTimeout stay 0: a slow client holds its worker
}

// GetDefaultConfig returns a Config with all default values applied and the
// HTTP adapter enabled.
//
// This is useful for:
//   - Generating sample configuration files
//   - Registering viper defaults
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Filesystem: make(map[string]any),
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
