package config

import (
	"context"
	"fmt"

	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/pkg/lockregistry"
	"github.com/marmos91/httpfs/pkg/store"
	storefs "github.com/marmos91/httpfs/pkg/store/fs"
	"github.com/mitchellh/mapstructure"
)

// FilesystemStoreConfig is the decoded form of store.filesystem.
type FilesystemStoreConfig struct {
	// Path is the root directory; created if missing
	Path string `mapstructure:"path"`
}

// CreateStore creates the resource store selected by cfg.Type.
//
// The type-specific section is decoded with mapstructure and passed to the
// store's constructor.
//
// Supported types:
//   - "filesystem": pkg/store/fs, files below a root directory
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(ctx, cfg.Filesystem)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

func createFilesystemStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg FilesystemStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}

	st, err := storefs.New(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}

	logger.Debug("Filesystem store rooted at %s", st.Root())
	return st, nil
}

// CreateLockRegistry creates the shared per-path lock registry.
func CreateLockRegistry(cfg *LocksConfig) (*lockregistry.Registry, error) {
	reg, err := lockregistry.New(cfg.OvertakeBound)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock registry: %w", err)
	}
	return reg, nil
}
