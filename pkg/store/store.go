// Package store defines the storage contract used by request handlers to
// read and write resource bytes.
//
// A store performs no synchronization of its own. Callers must hold the
// resource's lock from pkg/lockregistry in the matching mode for the whole
// lifetime of any reader or writer they obtain.
package store

import (
	"context"
	"io"
)

// Store reads and writes raw resource bytes addressed by a normalized key.
//
// Keys are slash-separated, relative, and already cleaned (no leading slash,
// no ".." elements). Implementations map them onto their own namespace.
type Store interface {
	// OpenRead opens the resource for reading and reports its size in bytes.
	//
	// Errors:
	//   - ErrIsDirectory: key names a directory
	//   - ErrNotFound: key does not exist
	//   - ErrPermissionDenied: the resource is not readable
	//   - anything else: unexpected storage failure
	OpenRead(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Exists reports whether anything is present at key.
	Exists(ctx context.Context, key string) bool

	// OpenWrite creates the resource, or truncates it if present, and
	// returns a writer for its new content.
	//
	// Errors:
	//   - ErrPermissionDenied: the location is not writable
	//   - ErrIsDirectory: key names a directory
	//   - ErrNotFound: a parent path component is missing or not a directory
	//   - anything else: unexpected storage failure
	OpenWrite(ctx context.Context, key string) (io.WriteCloser, error)
}
