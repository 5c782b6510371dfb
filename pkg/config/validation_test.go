package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidStoreType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "s3"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unsupported store type")
	}
}

func TestValidate_EmptyStorePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Filesystem["path"] = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for empty store path")
	}
	if !strings.Contains(err.Error(), "store.filesystem.path") {
		t.Errorf("Expected store path error, got: %v", err)
	}
}

func TestValidate_OvertakeBound(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Locks.OvertakeBound = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero overtake bound")
	}
	if !strings.Contains(err.Error(), "OvertakeBound") {
		t.Errorf("Expected OvertakeBound in error, got: %v", err)
	}
}

func TestValidate_HTTPPort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"default", 8080, false},
		{"max", 65535, false},
		{"too large", 65536, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Adapters.HTTP.Port = tt.port

			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Threads(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Threads = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero threads")
	}
	if !strings.Contains(err.Error(), "threads") {
		t.Errorf("Expected threads error, got: %v", err)
	}
}

func TestValidate_NoAdapterEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when no adapter is enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Expected adapter error, got: %v", err)
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = cfg.Adapters.HTTP.Port

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for metrics port conflict")
	}

	cfg.Server.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("Disabled metrics should not conflict, got: %v", err)
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.HTTP.ReadTimeout = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative read timeout")
	}
}
