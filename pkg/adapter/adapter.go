package adapter

import (
	"context"

	"github.com/marmos91/httpfs/pkg/lockregistry"
	"github.com/marmos91/httpfs/pkg/store"
)

// Adapter is a protocol front end managed by server.Server.
//
// Every adapter of one server shares the same store and the same lock
// registry, so a path is serialized identically whichever adapter a request
// arrives through.
//
// Lifecycle:
//  1. Creation: the adapter is built from its protocol configuration
//  2. Backend injection: SetBackend provides the shared store and locks
//  3. Startup: Serve binds the listener and blocks until shutdown
//  4. Shutdown: Stop drains in-flight work within its context deadline
//
// Thread safety:
// SetBackend is called once before Serve. Stop may be called concurrently
// with Serve.
type Adapter interface {
	// Serve starts the protocol server and blocks until ctx is cancelled or
	// an unrecoverable error occurs.
	//
	// On cancellation Serve stops accepting, lets queued and in-flight
	// requests finish within the shutdown timeout, and returns nil.
	// Returning before cancellation is treated as fatal by the server.
	Serve(ctx context.Context) error

	// SetBackend injects the shared store and lock registry.
	SetBackend(st store.Store, locks *lockregistry.Registry)

	// Stop initiates graceful shutdown and waits for it within ctx.
	//
	// It must be idempotent and safe to call concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics, e.g. "HTTP".
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}
