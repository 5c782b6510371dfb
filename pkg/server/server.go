package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/pkg/adapter"
	"github.com/marmos91/httpfs/pkg/lockregistry"
	"github.com/marmos91/httpfs/pkg/metrics"
	"github.com/marmos91/httpfs/pkg/store"
)

// DefaultStopTimeout bounds the Stop call issued to each adapter on shutdown.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of the protocol adapters that share one store
// and one lock registry.
//
// Lifecycle:
//  1. Creation: New() with the store and the lock registry
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters (and the metrics server, if set)
//  4. Shutdown: context cancellation stops every adapter in reverse order
//
// Example usage:
//
//	srv := server.New(st, locks)
//	if err := srv.AddAdapter(http.New(httpConfig, httpMetrics)); err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	store store.Store
	locks *lockregistry.Registry

	// mu protects adapters, metricsServer and served.
	mu            sync.RWMutex
	adapters      []adapter.Adapter
	metricsServer *metrics.Server
	served        bool

	stopTimeout time.Duration
	running     atomic.Bool
}

// New creates a server around the shared store and lock registry.
//
// Panics if either is nil.
func New(st store.Store, locks *lockregistry.Registry) *Server {
	if st == nil {
		panic("store cannot be nil")
	}
	if locks == nil {
		panic("lock registry cannot be nil")
	}

	return &Server{
		store:       st,
		locks:       locks,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: DefaultStopTimeout,
	}
}

// AddAdapter injects the shared backend into a and registers it.
//
// Duplicate protocols and port conflicts are rejected. Panics if a is nil or
// Serve has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetBackend(s.store, s.locks)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// SetMetricsServer attaches a metrics HTTP server run alongside the adapters.
// Its failure is logged but never stops file serving.
func (s *Server) SetMetricsServer(ms *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot set metrics server after Serve() has been called")
	}
	s.metricsServer = ms
}

// SetStopTimeout overrides DefaultStopTimeout.
func (s *Server) SetStopTimeout(d time.Duration) {
	if d > 0 {
		s.stopTimeout = d
	}
}

// Serve starts all registered adapters and blocks until ctx is cancelled or
// an adapter fails.
//
// Returns ctx.Err() after a shutdown triggered by cancellation, or the
// wrapped adapter error if one failed. Calling Serve twice returns an error.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("Serve() has already been called on this server instance")
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// adapters stop through Stop(), so they run on a context that outlives ctx
	// until the ordered shutdown has been issued
	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	startTime := time.Now()
	for _, a := range adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(serveCtx); err != nil {
				if serveCtx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
				}
				errChan <- adapterError{protocol: protocol, err: err}
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}()
	}

	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(serveCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	logger.Debug("Adapters launched in %v", time.Since(startTime))

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	cancelServe()

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order, each bounded
// by the shared stop timeout.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		protocol := a.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, a.Port())

		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stopped", protocol)
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Store returns the shared store.
func (s *Server) Store() store.Store {
	return s.store
}

// Locks returns the shared lock registry.
func (s *Server) Locks() *lockregistry.Registry {
	return s.locks
}

// Running reports whether Serve is in progress.
func (s *Server) Running() bool {
	return s.running.Load()
}
