package dispatch

import (
	"context"
	"errors"

	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/internal/protocol/http1"
	"github.com/marmos91/httpfs/pkg/store"
)

// handleGet streams the file at req.Key under the path's read lock.
func (d *Dispatcher) handleGet(ctx context.Context, conn Conn, req *http1.Request) *http1.Response {
	lock := d.lockFor(req.Key)
	d.readLock(lock)
	defer lock.RUnlock()

	r, size, err := d.store.OpenRead(ctx, req.Key)
	if err != nil {
		resp := getErrorResponse(err)
		if resp == http1.InternalServerError {
			logger.Warn("GET /%s: %v", req.Key, err)
		}
		d.send(conn, resp)
		return resp
	}
	defer func() { _ = r.Close() }()

	// once the head is out the status is fixed; a failed body only
	// shortens what the client sees
	if err := conn.SendFile(r, size); err != nil {
		logger.Debug("GET /%s: transfer aborted: %v", req.Key, err)
	}
	d.metrics.RecordBytesTransferred("read", size)
	return http1.OK
}

// handlePut replaces the file at req.Key with the request body under the
// path's write lock.
func (d *Dispatcher) handlePut(ctx context.Context, conn Conn, req *http1.Request) *http1.Response {
	lock := d.lockFor(req.Key)
	d.writeLock(lock)
	defer lock.Unlock()

	existed := d.store.Exists(ctx, req.Key)

	w, err := d.store.OpenWrite(ctx, req.Key)
	if err != nil {
		resp := putErrorResponse(err)
		if resp == http1.InternalServerError {
			logger.Warn("PUT /%s: %v", req.Key, err)
		}
		d.send(conn, resp)
		return resp
	}

	resp := conn.RecvFile(w)
	closeErr := w.Close()

	switch {
	case resp != nil:
		logger.Debug("PUT /%s: body transfer failed: %d", req.Key, resp.Code())
	case closeErr != nil:
		logger.Warn("PUT /%s: %v", req.Key, closeErr)
		resp = http1.InternalServerError
	case existed:
		resp = http1.OK
	default:
		resp = http1.Created
	}

	if resp == http1.OK || resp == http1.Created {
		d.metrics.RecordBytesTransferred("write", req.ContentLength)
	}
	d.send(conn, resp)
	return resp
}

// handleUnsupported answers any other verb without touching a lock or the store.
func (d *Dispatcher) handleUnsupported(conn Conn) *http1.Response {
	d.send(conn, http1.NotImplemented)
	return http1.NotImplemented
}

// getErrorResponse maps a read-side store error to its status.
func getErrorResponse(err error) *http1.Response {
	switch {
	case errors.Is(err, store.ErrIsDirectory), errors.Is(err, store.ErrPermissionDenied):
		return http1.Forbidden
	case errors.Is(err, store.ErrNotFound):
		return http1.NotFound
	default:
		return http1.InternalServerError
	}
}

// putErrorResponse maps a write-side store error to its status. A missing
// parent directory is the client's problem here, not a missing resource.
func putErrorResponse(err error) *http1.Response {
	switch {
	case errors.Is(err, store.ErrPermissionDenied),
		errors.Is(err, store.ErrIsDirectory),
		errors.Is(err, store.ErrNotFound):
		return http1.Forbidden
	default:
		return http1.InternalServerError
	}
}
