package http

import (
	"fmt"
	"time"
)

// Default values applied by applyDefaults.
const (
	DefaultPort               = 8080
	DefaultThreads            = 4
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMetricsLogInterval = 5 * time.Minute
)

// HTTPConfig holds the HTTP adapter configuration.
//
// Fields carry mapstructure tags for viper decoding and validate tags for
// go-playground/validator, like every other config section.
type HTTPConfig struct {
	// Enabled controls whether the adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. Default: 8080
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Threads is the number of worker goroutines. Default: 4
	Threads int `mapstructure:"threads" validate:"min=0"`

	// QueueCapacity bounds accepted connections waiting for a worker.
	// 0 means equal to Threads.
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=0"`

	// ReadTimeout bounds reading the request head and body. 0 disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing the response. 0 disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits for queued and in-flight
	// requests before force-closing their connections. Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the metrics log line. Default: 5m
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`

	// RateLimit throttles accepted connections.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the accept-side token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained admission rate. 0 means unlimited.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the bucket size. 0 means 1 when a rate is set.
	Burst uint `mapstructure:"burst"`
}

func (c *HTTPConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = c.Threads
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = DefaultMetricsLogInterval
	}
}

func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Threads <= 0 {
		return fmt.Errorf("invalid threads %d: must be > 0", c.Threads)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("invalid queue capacity %d: must be > 0", c.QueueCapacity)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid read timeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid write timeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}
