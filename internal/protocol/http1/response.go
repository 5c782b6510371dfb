package http1

import "strconv"

// Response is an immutable status line with a short plain-text body.
//
// The standard responses below are shared values: compare them by identity,
// never construct copies of them.
type Response struct {
	code   int
	reason string
}

func newResponse(code int, reason string) *Response {
	return &Response{code: code, reason: reason}
}

// Code returns the numeric status code.
func (r *Response) Code() int {
	return r.code
}

// Reason returns the reason phrase, which doubles as the response body.
func (r *Response) Reason() string {
	return r.reason
}

// Error lets a Response travel through error returns.
func (r *Response) Error() string {
	return strconv.Itoa(r.code) + " " + r.reason
}

// wire renders the full response: status line, Content-Length and body.
func (r *Response) wire() []byte {
	body := r.reason + "\n"
	buf := make([]byte, 0, 64+len(body))
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(r.code), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.reason...)
	buf = append(buf, "\r\nContent-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, "\r\n\r\n"...)
	buf = append(buf, body...)
	return buf
}

var (
	OK                  = newResponse(200, "OK")
	Created             = newResponse(201, "Created")
	BadRequest          = newResponse(400, "Bad Request")
	Forbidden           = newResponse(403, "Forbidden")
	NotFound            = newResponse(404, "Not Found")
	InternalServerError = newResponse(500, "Internal Server Error")
	NotImplemented      = newResponse(501, "Not Implemented")
	VersionNotSupported = newResponse(505, "Version Not Supported")
)
