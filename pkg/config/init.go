package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const configHeader = `# httpfs Configuration File
#
# Every key can be overridden with an environment variable named after its
# path, e.g. HTTPFS_ADAPTERS_HTTP_THREADS=8 or HTTPFS_LOGGING_LEVEL=DEBUG.
#
# logging.level:               DEBUG, INFO, WARN or ERROR
# logging.format:              text or json
# store.filesystem.path:       directory served; files are created 0600
# locks.overtake_bound:        readers admitted ahead of a waiting writer
# adapters.http.threads:       worker goroutines
# adapters.http.queue_capacity accepted connections waiting for a worker

`

// InitConfig writes the default configuration to the default location.
// It refuses to overwrite an existing file unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := RenderDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// RenderDefaultConfig returns the default configuration as commented YAML.
func RenderDefaultConfig() ([]byte, error) {
	m, err := defaultsMap()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.Bytes(), nil
}

// defaultsMap converts GetDefaultConfig into a nested map keyed by the
// mapstructure tags, the same keys viper reads.
func defaultsMap() (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(GetDefaultConfig(), &out); err != nil {
		return nil, fmt.Errorf("failed to convert default config: %w", err)
	}
	return normalize(out), nil
}

// normalize renders durations as strings ("30s") so they read naturally in
// YAML and decode back through viper's duration hook.
func normalize(m map[string]any) map[string]any {
	for k, v := range m {
		switch val := v.(type) {
		case time.Duration:
			m[k] = val.String()
		case map[string]any:
			m[k] = normalize(val)
		}
	}
	return m
}
