package http1

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxHeadSize bounds the request line plus headers, terminator included.
	MaxHeadSize = 2048

	// RequestIDHeader carries the client's correlation id.
	RequestIDHeader = "Request-Id"

	// DefaultRequestID is reported when a request carries no Request-Id.
	DefaultRequestID = "0"
)

var (
	requestLineRE = regexp.MustCompile(`^([a-zA-Z]{1,8}) /([a-zA-Z0-9._/-]{1,63}) (HTTP/[0-9]\.[0-9])$`)
	headerRE      = regexp.MustCompile(`^([a-zA-Z0-9.-]{1,128}):[ \t]*([\x20-\x7e]{0,128})$`)
)

// Request is a parsed request head.
type Request struct {
	Method     Method
	MethodName string

	// Key is the target path with the leading slash removed, cleaned.
	// The root itself is ".".
	Key string

	Version string

	// ContentLength is -1 when the header is absent.
	ContentLength int64

	headers map[string]string
}

// Header returns the value of the named header. Lookup ignores case.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.headers[strings.ToLower(name)]
	return v, ok
}

// RequestID returns the Request-Id header or DefaultRequestID.
func (r *Request) RequestID() string {
	if id, ok := r.Header(RequestIDHeader); ok && id != "" {
		return id
	}
	return DefaultRequestID
}

// parseRequestLine fills method, key and version from the first head line.
func (r *Request) parseRequestLine(line string) *Response {
	m := requestLineRE.FindStringSubmatch(line)
	if m == nil {
		return BadRequest
	}

	key := path.Clean(m[2])
	if key == ".." || strings.HasPrefix(key, "../") {
		return BadRequest
	}

	r.MethodName = m[1]
	r.Method = ParseMethod(m[1])
	r.Key = key
	r.Version = m[3]

	if r.Version != "HTTP/1.1" {
		return VersionNotSupported
	}
	return nil
}

// parseHeaderLine records one "key: value" line.
func (r *Request) parseHeaderLine(line string) *Response {
	m := headerRE.FindStringSubmatch(line)
	if m == nil {
		return BadRequest
	}

	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[strings.ToLower(m[1])] = strings.TrimRight(m[2], " \t")
	return nil
}

// finish validates cross-header constraints once the head is complete.
func (r *Request) finish() *Response {
	r.ContentLength = -1

	if v, ok := r.Header("Content-Length"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return BadRequest
		}
		r.ContentLength = n
	}

	if r.Method == PUT && r.ContentLength < 0 {
		return BadRequest
	}
	return nil
}
