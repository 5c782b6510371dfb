// Package fs implements the resource store on top of the local filesystem.
//
// Keys map one-to-one onto files below a root directory. New files are
// created with owner-only permissions (0600).
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/marmos91/httpfs/pkg/store"
)

// FileMode is the permission set applied to files created by OpenWrite.
const FileMode os.FileMode = 0600

// Store serves resources from a directory tree.
//
// Thread Safety:
// The store holds no mutable state. Concurrent access to the same key must
// be serialized by the caller through the key's reader/writer lock.
type Store struct {
	root string
}

var _ store.Store = (*Store)(nil)

// New creates a filesystem store rooted at root.
//
// The root directory is created with permissions 0755 if it does not exist.
//
// Parameters:
//   - ctx: Context for cancellation
//   - root: Directory that holds every resource
//
// Returns:
//   - *Store: Initialized store
//   - error: Returns error if the root cannot be created or context is cancelled
func New(ctx context.Context, root string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Resolve returns the filesystem path for key.
//
// The key is expected to be cleaned already. Resolve cleans it again
// relative to "/" so that no key can name a file outside the root.
func (s *Store) Resolve(key string) string {
	rel := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(s.root, rel)
}

// OpenRead opens the file at key for reading.
//
// Directories are rejected before the open is attempted. The returned
// reader is an *os.File so that socket writers can use sendfile.
func (s *Store) OpenRead(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	path := s.Resolve(key)

	// a failed stat is not final: the open below classifies the error
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, 0, fmt.Errorf("open %s: %w", key, store.ErrIsDirectory)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, classifyReadError(key, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	// the path may have been swapped for a directory between stat and open
	if info.IsDir() {
		_ = file.Close()
		return nil, 0, fmt.Errorf("open %s: %w", key, store.ErrIsDirectory)
	}

	return file, info.Size(), nil
}

// Exists reports whether anything, file or directory, is present at key.
func (s *Store) Exists(_ context.Context, key string) bool {
	_, err := os.Lstat(s.Resolve(key))
	return err == nil
}

// OpenWrite creates or truncates the file at key.
//
// Missing parent directories are not created.
func (s *Store) OpenWrite(ctx context.Context, key string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(s.Resolve(key), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileMode)
	if err != nil {
		return nil, classifyWriteError(key, err)
	}

	return file, nil
}

// classifyReadError maps an open(2) failure on the read path to a store error.
func classifyReadError(key string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return fmt.Errorf("open %s: %w", key, store.ErrNotFound)
	case errors.Is(err, iofs.ErrPermission):
		return fmt.Errorf("open %s: %w", key, store.ErrPermissionDenied)
	default:
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
}

// classifyWriteError maps an open(2) failure on the write path to a store error.
func classifyWriteError(key string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrPermission):
		return fmt.Errorf("create %s: %w", key, store.ErrPermissionDenied)
	case errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("create %s: %w", key, store.ErrIsDirectory)
	case errors.Is(err, iofs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("create %s: %w", key, store.ErrNotFound)
	default:
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
}
