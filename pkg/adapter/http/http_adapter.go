// Package http implements the HTTP file-serving adapter.
//
// A single accept goroutine pushes every accepted connection into a bounded
// work queue. A fixed pool of workers pops connections in FIFO order and
// serves exactly one request on each before closing it. When the queue is
// full the accept loop blocks, which leaves further clients in the kernel
// backlog.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/internal/protocol/http1"
	"github.com/marmos91/httpfs/internal/ratelimiter"
	"github.com/marmos91/httpfs/pkg/audit"
	"github.com/marmos91/httpfs/pkg/dispatch"
	"github.com/marmos91/httpfs/pkg/lockregistry"
	"github.com/marmos91/httpfs/pkg/metrics"
	"github.com/marmos91/httpfs/pkg/store"
	"github.com/marmos91/httpfs/pkg/worker"
	"github.com/marmos91/httpfs/pkg/workqueue"
)

// workItem is one accepted connection. It is owned by the accept loop until
// pushed, then by exactly one worker.
type workItem struct {
	id       string
	conn     net.Conn
	accepted time.Time
}

// HTTPAdapter serves GET and PUT requests against the shared store.
//
// Architecture:
//   - one accept goroutine (the caller of Serve)
//   - a workqueue.Queue of accepted connections, capacity QueueCapacity
//   - a worker.Pool of Threads goroutines running dispatch.Dispatcher
//
// Graceful shutdown:
//  1. The listener is closed and the accept loop exits
//  2. The queue is closed; workers drain what is already queued
//  3. After ShutdownTimeout, remaining connections are force-closed
type HTTPAdapter struct {
	config HTTPConfig

	listenerMu sync.Mutex
	listener   net.Listener

	store store.Store
	locks *lockregistry.Registry
	audit *audit.Logger

	metrics metrics.HTTPMetrics
	limiter *ratelimiter.RateLimiter

	queue *workqueue.Queue[*workItem]
	pool  *worker.Pool[*workItem]

	// shutdown is closed once when shutdown begins.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// acceptCtx bounds blocking calls of the accept loop (rate limit wait,
	// queue push) and is cancelled when shutdown begins.
	acceptCtx    context.Context
	cancelAccept context.CancelFunc

	// workerCtx is handed to request handling and cancelled only when the
	// shutdown timeout forces connections closed.
	workerCtx     context.Context
	cancelWorkers context.CancelFunc

	started atomic.Bool
	stopped chan struct{}

	// connCount counts accepted connections not yet closed, queued or in service.
	connCount         atomic.Int32
	activeConnections sync.Map // id -> net.Conn
}

// New creates an HTTP adapter. It panics on an invalid configuration; the
// config package validates user input before this point.
//
// A nil httpMetrics selects the no-op implementation.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	acceptCtx, cancelAccept := context.WithCancel(context.Background())
	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	return &HTTPAdapter{
		config:        config,
		audit:         audit.New(nil),
		metrics:       httpMetrics,
		limiter:       ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst),
		shutdown:      make(chan struct{}),
		acceptCtx:     acceptCtx,
		cancelAccept:  cancelAccept,
		workerCtx:     workerCtx,
		cancelWorkers: cancelWorkers,
		stopped:       make(chan struct{}),
	}
}

// SetBackend injects the shared store and lock registry.
func (s *HTTPAdapter) SetBackend(st store.Store, locks *lockregistry.Registry) {
	s.store = st
	s.locks = locks
	logger.Debug("HTTP backend configured")
}

// SetAuditLogger replaces the default stderr access log. Call before Serve.
func (s *HTTPAdapter) SetAuditLogger(l *audit.Logger) {
	if l != nil {
		s.audit = l
	}
}

// Serve binds the configured port and serves until ctx is cancelled.
//
// Failure to bind is returned immediately and is fatal to the process.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", s.config.Port, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an already bound listener. The adapter takes
// ownership of ln and closes it on shutdown.
func (s *HTTPAdapter) ServeListener(ctx context.Context, ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		_ = ln.Close()
		return errors.New("HTTP adapter already started")
	}
	defer close(s.stopped)

	if s.store == nil || s.locks == nil {
		_ = ln.Close()
		return errors.New("HTTP adapter has no backend: SetBackend must be called before Serve")
	}

	if !s.setListener(ln) {
		logger.Debug("HTTP adapter stopped before serving")
		return nil
	}

	queue, err := workqueue.New[*workItem](s.config.QueueCapacity)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to create work queue: %w", err)
	}
	s.queue = queue

	dispatcher := dispatch.New(s.store, s.locks, s.audit, s.metrics)
	pool, err := worker.NewPool(queue, s.config.Threads, func(ctx context.Context, workerID int, item *workItem) {
		s.handle(ctx, dispatcher, workerID, item)
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	pool.OnPanic = func(item *workItem) {
		logger.Warn("[%s] Request from %s aborted by panic", item.id, item.conn.RemoteAddr())
	}
	s.pool = pool

	logger.Info("HTTP server listening on %s", ln.Addr())
	logger.Debug("HTTP config: threads=%d queue_capacity=%d read_timeout=%v write_timeout=%v rate_limit=%d/s",
		s.config.Threads, s.config.QueueCapacity, s.config.ReadTimeout, s.config.WriteTimeout,
		s.config.RateLimit.RequestsPerSecond)

	pool.Start(s.workerCtx)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.acceptCtx)
	}

	if err := s.acceptLoop(ln); err != nil {
		s.initiateShutdown()
		_ = s.gracefulShutdown()
		return err
	}

	return s.gracefulShutdown()
}

// acceptLoop is the single producer of the work queue. It returns nil when
// shutdown was requested and an error if the listener failed on its own.
func (s *HTTPAdapter) acceptLoop(ln net.Listener) error {
	for {
		if !s.limiter.Unlimited() {
			if err := s.limiter.Wait(s.acceptCtx); err != nil {
				if s.isShuttingDown() {
					return nil
				}
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.isShuttingDown() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("HTTP listener closed unexpectedly: %w", err)
			}
			logger.Debug("Error accepting HTTP connection: %v", err)
			continue
		}

		item := &workItem{
			id:       uuid.NewString(),
			conn:     conn,
			accepted: time.Now(),
		}
		s.track(item)

		if err := s.queue.Push(s.acceptCtx, item); err != nil {
			// shutdown began while the queue was full
			s.release(item)
			return nil
		}
		s.metrics.SetQueueDepth(s.queue.Len())
	}
}

// handle serves the one request carried by item and always closes it.
func (s *HTTPAdapter) handle(ctx context.Context, dispatcher *dispatch.Dispatcher, workerID int, item *workItem) {
	defer s.release(item)

	s.metrics.SetQueueDepth(s.queue.Len())
	waited := time.Since(item.accepted)

	conn := http1.NewConn(item.conn, http1.ConnConfig{
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	})

	result := dispatcher.Handle(ctx, conn)

	if logger.Enabled(logger.LevelDebug) {
		logger.Debug("[%s] worker=%d %s %s /%s -> %d (queued %v, total %v)",
			item.id, workerID, item.conn.RemoteAddr(), result.Method, result.Key,
			result.Status, waited, time.Since(item.accepted))
	}
}

func (s *HTTPAdapter) track(item *workItem) {
	s.activeConnections.Store(item.id, item.conn)
	count := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(count)
}

func (s *HTTPAdapter) release(item *workItem) {
	if err := item.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("[%s] Error closing connection: %v", item.id, err)
	}
	s.activeConnections.Delete(item.id)
	count := s.connCount.Add(-1)
	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveConnections(count)
}

// setListener publishes ln for shutdown. It reports false, closing ln, if
// shutdown already began.
func (s *HTTPAdapter) setListener(ln net.Listener) bool {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	select {
	case <-s.shutdown:
		_ = ln.Close()
		return false
	default:
	}

	s.listener = ln
	return true
}

func (s *HTTPAdapter) isShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// initiateShutdown stops the accept side. Safe to call many times.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		s.listenerMu.Lock()
		close(s.shutdown)
		ln := s.listener
		s.listenerMu.Unlock()

		s.cancelAccept()

		if ln != nil {
			if err := ln.Close(); err != nil {
				logger.Debug("Error closing HTTP listener: %v", err)
			}
		}
	})
}

// gracefulShutdown runs after the accept loop has returned. It closes the
// queue, waits for workers to drain it, and force-closes connections once
// ShutdownTimeout elapses.
func (s *HTTPAdapter) gracefulShutdown() error {
	s.queue.Close()

	pending := s.connCount.Load()
	logger.Info("HTTP graceful shutdown: waiting for %d connection(s) (timeout: %v)",
		pending, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelWorkers()
		logger.Info("HTTP graceful shutdown complete")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still open after %v, forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.cancelWorkers()
		s.forceCloseConnections()
		<-done

		// workers stopped on the cancelled context may leave items behind
		for {
			item, err := s.queue.Pop(context.Background())
			if err != nil {
				break
			}
			s.release(item)
		}

		return fmt.Errorf("HTTP shutdown timeout: %d connection(s) force-closed", remaining)
	}
}

func (s *HTTPAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("[%s] Error force-closing connection: %v", id, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed %d HTTP connection(s)", closed)
	}
}

// Stop initiates shutdown and waits for Serve to finish draining, bounded by ctx.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		logger.Warn("HTTP stop: %d connection(s) still open: %v", s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("HTTP metrics: open_connections=%d queue_depth=%d busy_workers=%d/%d registered_locks=%d",
				s.connCount.Load(), s.queue.Len(), s.pool.Busy(), s.pool.Size(), s.locks.Len())
		}
	}
}

// ActiveConnections returns the number of accepted connections not yet closed.
func (s *HTTPAdapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the bound listener address, or nil before Serve.
func (s *HTTPAdapter) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port once listening, the configured one before.
func (s *HTTPAdapter) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.config.Port
}

func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
