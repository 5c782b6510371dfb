// Package dispatch drives a single connection from parsed request to
// response: it classifies the method, takes the path lock in the matching
// mode, performs the store operation, responds, and records the outcome.
package dispatch

import (
	"context"
	"io"
	"time"

	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/internal/protocol/http1"
	"github.com/marmos91/httpfs/pkg/audit"
	"github.com/marmos91/httpfs/pkg/lockregistry"
	"github.com/marmos91/httpfs/pkg/metrics"
	"github.com/marmos91/httpfs/pkg/rwlock"
	"github.com/marmos91/httpfs/pkg/store"
)

// Conn is the per-connection surface the dispatcher needs.
// *http1.Conn implements it.
type Conn interface {
	Parse() *http1.Response
	Request() *http1.Request
	SendResponse(resp *http1.Response) error
	SendFile(r io.Reader, size int64) error
	RecvFile(w io.Writer) *http1.Response
}

// Result summarizes one handled connection.
type Result struct {
	// Method is the raw request verb, empty when parsing failed.
	Method string
	Key    string
	Status int

	// RequestID is the Request-Id header value or "0".
	RequestID string
}

// Dispatcher routes parsed requests to the GET, PUT and unsupported handlers.
//
// One Dispatcher is shared by every worker. It holds no per-request state;
// all synchronization of file access goes through the lock registry.
type Dispatcher struct {
	store   store.Store
	locks   *lockregistry.Registry
	audit   *audit.Logger
	metrics metrics.HTTPMetrics
}

// New creates a dispatcher. A nil audit logger writes to stderr and nil
// metrics are replaced by the no-op implementation.
func New(st store.Store, locks *lockregistry.Registry, auditLog *audit.Logger, m metrics.HTTPMetrics) *Dispatcher {
	if auditLog == nil {
		auditLog = audit.New(nil)
	}
	if m == nil {
		m = metrics.NewNoopHTTPMetrics()
	}

	return &Dispatcher{
		store:   st,
		locks:   locks,
		audit:   auditLog,
		metrics: m,
	}
}

// Handle processes the single request carried by conn.
//
// Every path ends with exactly one response sent. Every path lock taken is
// released before Handle returns. Closing conn is left to the caller.
func (d *Dispatcher) Handle(ctx context.Context, conn Conn) Result {
	if resp := conn.Parse(); resp != nil {
		d.send(conn, resp)
		logger.Debug("Rejected malformed request: %d %s", resp.Code(), resp.Reason())
		return Result{Status: resp.Code()}
	}

	req := conn.Request()
	label := req.Method.String()

	d.metrics.RecordRequestStart(label)
	start := time.Now()

	var resp *http1.Response
	switch req.Method {
	case http1.GET:
		resp = d.handleGet(ctx, conn, req)
	case http1.PUT:
		resp = d.handlePut(ctx, conn, req)
	default:
		resp = d.handleUnsupported(conn)
	}

	d.metrics.RecordRequestEnd(label)
	d.metrics.RecordRequest(label, resp.Code(), time.Since(start))

	requestID := req.RequestID()
	d.audit.Log(req.MethodName, req.Key, resp.Code(), requestID)

	return Result{
		Method:    req.MethodName,
		Key:       req.Key,
		Status:    resp.Code(),
		RequestID: requestID,
	}
}

// lockFor resolves the path lock and publishes the registry size.
func (d *Dispatcher) lockFor(key string) *rwlock.RWLock {
	lock := d.locks.GetOrCreate(key)
	d.metrics.SetRegisteredLocks(d.locks.Len())
	return lock
}

func (d *Dispatcher) readLock(lock *rwlock.RWLock) {
	start := time.Now()
	lock.RLock()
	d.metrics.RecordLockWait("read", time.Since(start))
}

func (d *Dispatcher) writeLock(lock *rwlock.RWLock) {
	start := time.Now()
	lock.Lock()
	d.metrics.RecordLockWait("write", time.Since(start))
}

// send writes resp. A peer that went away is not an error worth more than a
// debug line: the outcome is already decided.
func (d *Dispatcher) send(conn Conn, resp *http1.Response) {
	if err := conn.SendResponse(resp); err != nil {
		logger.Debug("Failed to send %d response: %v", resp.Code(), err)
	}
}
