package store

import "errors"

// ============================================================================
// Standard Store Errors
// ============================================================================

// These errors give every store implementation a common vocabulary for
// failures that request handlers translate into status codes. Handlers check
// them with errors.Is:
//
//	r, size, err := st.OpenRead(ctx, key)
//	if err != nil {
//	    if errors.Is(err, store.ErrNotFound) {
//	        return http1.NotFound
//	    }
//	    return http1.InternalServerError
//	}
//
// Implementations wrap them with the key for context:
//
//	return fmt.Errorf("open %s: %w", key, store.ErrNotFound)

var (
	// ErrNotFound indicates the resource, or one of its parent components,
	// does not exist.
	//
	// Status mapping:
	//   - GET: 404 Not Found
	//   - PUT: 403 Forbidden (the parent directory cannot be created implicitly)
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied indicates the process lacks permission to access
	// the resource or its parent directory.
	//
	// Status mapping: 403 Forbidden
	ErrPermissionDenied = errors.New("permission denied")

	// ErrIsDirectory indicates the key names a directory, which cannot be
	// served or overwritten as a file.
	//
	// Status mapping: 403 Forbidden
	ErrIsDirectory = errors.New("resource is a directory")
)
