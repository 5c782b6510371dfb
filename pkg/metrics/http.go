package metrics

import "time"

// HTTPMetrics provides observability for the HTTP file adapter.
//
// Implementations collect request outcomes, throughput, connection
// lifecycle, queue depth and lock contention. The interface is optional: an
// adapter built without one uses the no-op implementation.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewHTTPMetrics()
//	adapter := http.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := http.New(config, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: "GET", "PUT" or "UNSUPPORTED"
	//   - status: Response status code sent to the client
	//   - duration: Time from dispatch to response
	RecordRequest(method string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd(method string)

	// RecordBytesTransferred records body bytes moved.
	//
	// Parameters:
	//   - direction: "read" (GET bodies sent) or "write" (PUT bodies received)
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetActiveConnections updates the number of connections being served.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by the shutdown timeout.
	RecordConnectionForceClosed()

	// SetQueueDepth reports connections accepted but not yet picked up by a worker.
	SetQueueDepth(depth int)

	// RecordLockWait records how long a handler waited for a path lock.
	//
	// Parameters:
	//   - mode: "read" or "write"
	//   - duration: Time spent blocked in RLock or Lock
	RecordLockWait(mode string, duration time.Duration)

	// SetRegisteredLocks reports the number of paths in the lock registry.
	SetRegisteredLocks(count int)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics with zero overhead.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRequestStart(method string)                                {}
func (noopHTTPMetrics) RecordRequestEnd(method string)                                  {}
func (noopHTTPMetrics) RecordBytesTransferred(direction string, bytes int64)            {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (noopHTTPMetrics) RecordConnectionClosed()                                         {}
func (noopHTTPMetrics) RecordConnectionForceClosed()                                    {}
func (noopHTTPMetrics) SetQueueDepth(depth int)                                         {}
func (noopHTTPMetrics) RecordLockWait(mode string, duration time.Duration)              {}
func (noopHTTPMetrics) SetRegisteredLocks(count int)                                    {}
