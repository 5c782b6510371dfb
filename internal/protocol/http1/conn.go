// Package http1 implements the minimal HTTP/1.1 exchange used by the file
// server: exactly one request per connection, read with a bounded head,
// answered with a fixed-shape response or a streamed file body.
package http1

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// ConnConfig holds per-connection I/O deadlines. Zero disables a deadline.
type ConnConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Conn wraps one accepted connection for a single request/response exchange.
//
// A Conn is owned by one goroutine at a time and is not safe for concurrent use.
type Conn struct {
	nc     net.Conn
	r      *bufio.Reader
	config ConnConfig

	req *Request

	received int64
	sent     int64
}

// NewConn wraps an accepted connection.
func NewConn(nc net.Conn, config ConnConfig) *Conn {
	return &Conn{
		nc:     nc,
		r:      bufio.NewReaderSize(nc, 2*MaxHeadSize),
		config: config,
	}
}

// Parse reads and validates the request head.
//
// It returns nil on success, or the response that must be sent back for a
// malformed request. Parse must be called once, before any other accessor.
func (c *Conn) Parse() *Response {
	if err := c.setReadDeadline(); err != nil {
		return InternalServerError
	}

	req := &Request{}
	total := 0
	first := true

	for {
		line, err := c.r.ReadSlice('\n')
		total += len(line)
		// covers bufio.ErrBufferFull, premature EOF and deadline expiry
		if err != nil || total > MaxHeadSize {
			return BadRequest
		}

		line = bytes.TrimSuffix(line, []byte("\n"))
		if !bytes.HasSuffix(line, []byte("\r")) {
			return BadRequest
		}
		line = line[:len(line)-1]

		if first {
			first = false
			if resp := req.parseRequestLine(string(line)); resp != nil {
				return resp
			}
			continue
		}

		if len(line) == 0 {
			break
		}
		if resp := req.parseHeaderLine(string(line)); resp != nil {
			return resp
		}
	}

	if resp := req.finish(); resp != nil {
		return resp
	}

	c.req = req
	return nil
}

// Request returns the parsed request, or nil before a successful Parse.
func (c *Conn) Request() *Request {
	return c.req
}

// Method returns the request kind.
func (c *Conn) Method() Method {
	return c.req.Method
}

// MethodName returns the verb exactly as sent by the client.
func (c *Conn) MethodName() string {
	return c.req.MethodName
}

// URI returns the normalized resource key.
func (c *Conn) URI() string {
	return c.req.Key
}

// Header looks up a request header, ignoring case.
func (c *Conn) Header(name string) (string, bool) {
	return c.req.Header(name)
}

// SendResponse writes a complete status response.
func (c *Conn) SendResponse(resp *Response) error {
	if err := c.setWriteDeadline(); err != nil {
		return err
	}

	n, err := c.nc.Write(resp.wire())
	c.sent += int64(n)
	if err != nil {
		return fmt.Errorf("send response %d: %w", resp.Code(), err)
	}
	return nil
}

// SendFile writes a 200 head followed by exactly size bytes read from r.
//
// When r is an *os.File and the connection a *net.TCPConn the copy is
// performed by the kernel.
func (c *Conn) SendFile(r io.Reader, size int64) error {
	if err := c.setWriteDeadline(); err != nil {
		return err
	}

	head := make([]byte, 0, 64)
	head = append(head, "HTTP/1.1 200 OK\r\nContent-Length: "...)
	head = strconv.AppendInt(head, size, 10)
	head = append(head, "\r\n\r\n"...)

	n, err := c.nc.Write(head)
	c.sent += int64(n)
	if err != nil {
		return fmt.Errorf("send file head: %w", err)
	}

	copied, err := io.CopyN(c.nc, r, size)
	c.sent += copied
	if err != nil {
		return fmt.Errorf("send file body (%d of %d bytes): %w", copied, size, err)
	}
	return nil
}

// RecvFile copies the request body, exactly Content-Length bytes, into w.
//
// It returns nil on success. A body that ends early yields BadRequest; a
// failure writing to w yields InternalServerError.
func (c *Conn) RecvFile(w io.Writer) *Response {
	if c.req.ContentLength <= 0 {
		return nil
	}

	if err := c.setReadDeadline(); err != nil {
		return InternalServerError
	}

	dst := &trackingWriter{w: w}
	n, err := io.CopyN(dst, c.r, c.req.ContentLength)
	c.received += n
	if err != nil {
		if dst.err != nil {
			return InternalServerError
		}
		return BadRequest
	}
	return nil
}

// BytesReceived reports body bytes consumed by RecvFile.
func (c *Conn) BytesReceived() int64 {
	return c.received
}

// BytesSent reports every byte written to the peer.
func (c *Conn) BytesSent() int64 {
	return c.sent
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

func (c *Conn) setReadDeadline() error {
	if c.config.ReadTimeout <= 0 {
		return nil
	}
	return c.nc.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
}

func (c *Conn) setWriteDeadline() error {
	if c.config.WriteTimeout <= 0 {
		return nil
	}
	return c.nc.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
}

// trackingWriter remembers the first write error so RecvFile can tell a
// failing destination from a short body.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
