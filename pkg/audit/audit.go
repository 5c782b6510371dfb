// Package audit writes the one-line-per-request access log.
//
// Each completed request produces exactly one line of the form
//
//	<METHOD>,/<path>,<status>,<request-id>
//
// Lines from concurrent workers never interleave.
package audit

import (
	"io"
	"os"
	"strconv"
	"sync"
)

// Logger serializes access log lines onto a writer.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a Logger writing to w, or to stderr when w is nil.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{w: w}
}

// Log records the outcome of one request. key is the normalized resource
// path without its leading slash.
func (l *Logger) Log(method, key string, status int, requestID string) {
	line := make([]byte, 0, len(method)+len(key)+len(requestID)+8)
	line = append(line, method...)
	line = append(line, ",/"...)
	line = append(line, key...)
	line = append(line, ',')
	line = strconv.AppendInt(line, int64(status), 10)
	line = append(line, ',')
	line = append(line, requestID...)
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	// a failed diagnostic write must not fail the request
	_, _ = l.w.Write(line)
}
