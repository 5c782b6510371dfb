package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/httpfs/internal/protocol/http1"
	"github.com/marmos91/httpfs/pkg/audit"
	"github.com/marmos91/httpfs/pkg/lockregistry"
	"github.com/marmos91/httpfs/pkg/metrics"
	"github.com/marmos91/httpfs/pkg/rwlock"
	"github.com/marmos91/httpfs/pkg/store"
	"github.com/marmos91/httpfs/pkg/store/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConn feeds a canned request and captures the response bytes.
type memConn struct {
	net.Conn
	in  io.Reader
	out bytes.Buffer
}

func (m *memConn) Read(p []byte) (int, error)  { return m.in.Read(p) }
func (m *memConn) Write(p []byte) (int, error) { return m.out.Write(p) }
func (m *memConn) Close() error                { return nil }

type fixture struct {
	d     *Dispatcher
	store *fs.Store
	locks *lockregistry.Registry
	log   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := fs.New(context.Background(), t.TempDir())
	require.NoError(t, err)
	locks, err := lockregistry.New(rwlock.DefaultOvertakeBound)
	require.NoError(t, err)

	var log bytes.Buffer
	return &fixture{
		d:     New(st, locks, audit.New(&log), nil),
		store: st,
		locks: locks,
		log:   &log,
	}
}

type reply struct {
	status int
	body   string
	result Result
}

func (f *fixture) do(t *testing.T, raw string) reply {
	t.Helper()
	return doWith(t, f.d, raw)
}

func doWith(t *testing.T, d *Dispatcher, raw string) reply {
	t.Helper()

	nc := &memConn{in: strings.NewReader(raw)}
	result := d.Handle(context.Background(), http1.NewConn(nc, http1.ConnConfig{}))

	resp, err := http.ReadResponse(bufio.NewReader(&nc.out), nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, resp.StatusCode, result.Status)

	return reply{status: resp.StatusCode, body: string(body), result: result}
}

func get(path string, headers ...string) string {
	return "GET " + path + " HTTP/1.1\r\n" + strings.Join(headers, "") + "\r\n"
}

func put(path, body string, headers ...string) string {
	return fmt.Sprintf("PUT %s HTTP/1.1\r\nContent-Length: %d\r\n%s\r\n%s", path, len(body), strings.Join(headers, ""), body)
}

// requireIdle checks that the lock for key exists and is released.
func (f *fixture) requireIdle(t *testing.T, key string) {
	t.Helper()
	lock, ok := f.locks.Lookup(key)
	require.True(t, ok, "no lock registered for %s", key)
	assert.Equal(t, rwlock.Idle, lock.State().Mode)
}

func TestHandle_EndToEndSequence(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(f.store.Resolve("somedir"), 0755))

	r := f.do(t, put("/file.txt", "hello"))
	assert.Equal(t, 201, r.status)
	assert.Equal(t, "Created\n", r.body)

	r = f.do(t, get("/file.txt"))
	assert.Equal(t, 200, r.status)
	assert.Equal(t, "hello", r.body)

	r = f.do(t, put("/file.txt", "world"))
	assert.Equal(t, 200, r.status)

	r = f.do(t, get("/file.txt"))
	assert.Equal(t, "world", r.body)

	r = f.do(t, get("/missing.txt"))
	assert.Equal(t, 404, r.status)

	r = f.do(t, get("/somedir/"))
	assert.Equal(t, 403, r.status)

	r = f.do(t, "DELETE /file.txt HTTP/1.1\r\n\r\n")
	assert.Equal(t, 501, r.status)

	f.requireIdle(t, "file.txt")
	f.requireIdle(t, "missing.txt")
	f.requireIdle(t, "somedir")

	info, err := os.Stat(f.store.Resolve("file.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestHandle_AuditLines(t *testing.T) {
	f := newFixture(t)

	f.do(t, put("/a.txt", "x", "Request-Id: 11\r\n"))
	f.do(t, get("/a.txt"))
	f.do(t, get("/nope.txt", "request-id: 12\r\n"))
	f.do(t, "PATCH /a.txt HTTP/1.1\r\nRequest-Id: 13\r\n\r\n")

	assert.Equal(t,
		"PUT,/a.txt,201,11\n"+
			"GET,/a.txt,200,0\n"+
			"GET,/nope.txt,404,12\n"+
			"PATCH,/a.txt,501,13\n",
		f.log.String())
}

func TestHandle_ParseFailure(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, "GET /a HTTP/1.0\r\n\r\n")
	assert.Equal(t, 505, r.status)

	r = f.do(t, "garbage\r\n\r\n")
	assert.Equal(t, 400, r.status)
	assert.Empty(t, r.result.Method)

	// rejected requests touch neither the lock registry nor the audit log
	assert.Zero(t, f.locks.Len())
	assert.Empty(t, f.log.String())
}

func TestHandle_UnsupportedTouchesNoLock(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, "POST /x.txt HTTP/1.1\r\n\r\n")
	assert.Equal(t, 501, r.status)
	assert.Equal(t, "POST", r.result.Method)
	assert.Zero(t, f.locks.Len())
	assert.False(t, f.store.Exists(context.Background(), "x.txt"))
}

func TestHandle_PutErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(f.store.Resolve("dir"), 0755))

	r := f.do(t, put("/dir", "x"))
	assert.Equal(t, 403, r.status)

	r = f.do(t, put("/nodir/file.txt", "x"))
	assert.Equal(t, 403, r.status)

	f.requireIdle(t, "dir")
	f.requireIdle(t, "nodir/file.txt")
}

func TestHandle_PutShortBodyReleasesLock(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, "PUT /f.txt HTTP/1.1\r\nContent-Length: 100\r\n\r\nonly-this")
	assert.Equal(t, 400, r.status)
	f.requireIdle(t, "f.txt")

	// the path must still be usable afterwards
	r = f.do(t, put("/f.txt", "complete"))
	assert.Equal(t, 200, r.status)

	r = f.do(t, get("/f.txt"))
	assert.Equal(t, "complete", r.body)
}

func TestHandle_EmptyBody(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, put("/empty", ""))
	assert.Equal(t, 201, r.status)

	r = f.do(t, get("/empty"))
	assert.Equal(t, 200, r.status)
	assert.Empty(t, r.body)
}

func TestHandle_NestedPath(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.store.Resolve("a/b"), 0755))

	r := f.do(t, put("/a/b/c.txt", "deep"))
	assert.Equal(t, 201, r.status)

	r = f.do(t, get("/a/./b//c.txt"))
	assert.Equal(t, "deep", r.body)
	assert.Equal(t, "a/b/c.txt", r.result.Key)

	data, err := os.ReadFile(filepath.Join(f.store.Root(), "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}

// failingStore reports an unexpected error for every operation.
type failingStore struct{}

var errBoom = errors.New("device on fire")

func (failingStore) OpenRead(context.Context, string) (io.ReadCloser, int64, error) {
	return nil, 0, errBoom
}
func (failingStore) Exists(context.Context, string) bool { return false }
func (failingStore) OpenWrite(context.Context, string) (io.WriteCloser, error) {
	return nil, errBoom
}

var _ store.Store = failingStore{}

func TestHandle_UnexpectedStoreErrors(t *testing.T) {
	locks, err := lockregistry.New(1)
	require.NoError(t, err)
	d := New(failingStore{}, locks, audit.New(io.Discard), nil)

	assert.Equal(t, 500, doWith(t, d, get("/x")).status)
	assert.Equal(t, 500, doWith(t, d, put("/x", "data")).status)

	lock, ok := locks.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, rwlock.Idle, lock.State().Mode)
}

func TestErrorMapping(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("open k: %w", err) }

	assert.Same(t, http1.NotFound, getErrorResponse(wrap(store.ErrNotFound)))
	assert.Same(t, http1.Forbidden, getErrorResponse(wrap(store.ErrPermissionDenied)))
	assert.Same(t, http1.Forbidden, getErrorResponse(wrap(store.ErrIsDirectory)))
	assert.Same(t, http1.InternalServerError, getErrorResponse(errBoom))

	assert.Same(t, http1.Forbidden, putErrorResponse(wrap(store.ErrNotFound)))
	assert.Same(t, http1.Forbidden, putErrorResponse(wrap(store.ErrPermissionDenied)))
	assert.Same(t, http1.Forbidden, putErrorResponse(wrap(store.ErrIsDirectory)))
	assert.Same(t, http1.InternalServerError, putErrorResponse(errBoom))
}

// lockMetrics records the lock-related calls made by the dispatcher.
type lockMetrics struct {
	metrics.HTTPMetrics

	mu         sync.Mutex
	waits      map[string]int
	registered int
	bytes      map[string]int64
}

func (m *lockMetrics) RecordLockWait(mode string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits[mode]++
}

func (m *lockMetrics) SetRegisteredLocks(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = count
}

func (m *lockMetrics) RecordBytesTransferred(direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[direction] += n
}

func TestHandle_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	m := &lockMetrics{
		HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		waits:       map[string]int{},
		bytes:       map[string]int64{},
	}
	d := New(f.store, f.locks, audit.New(io.Discard), m)

	doWith(t, d, put("/a", "12345"))
	doWith(t, d, get("/a"))
	doWith(t, d, get("/b"))

	assert.Equal(t, 1, m.waits["write"])
	assert.Equal(t, 2, m.waits["read"])
	assert.Equal(t, 2, m.registered)
	assert.Equal(t, int64(5), m.bytes["write"])
	assert.Equal(t, int64(5), m.bytes["read"])
}

// Concurrent readers and writers on one path: every read must observe one
// complete payload, and the final content must be exactly one payload.
func TestHandle_ConcurrentNoTornReadsOrWrites(t *testing.T) {
	f := newFixture(t)

	const (
		size    = 64 * 1024
		writers = 8
		readers = 16
		rounds  = 10
	)

	payload := func(i int) string {
		return strings.Repeat(string(rune('a'+i)), size)
	}

	require.Equal(t, 201, f.do(t, put("/shared.bin", payload(writers))).status)

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				r := f.do(t, put("/shared.bin", payload(w)))
				assert.Equal(t, 200, r.status)
			}
		}()
	}

	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				r := f.do(t, get("/shared.bin"))
				if !assert.Equal(t, 200, r.status) {
					continue
				}
				if assert.Len(t, r.body, size) {
					assert.Equal(t, strings.Repeat(r.body[:1], size), r.body, "torn read")
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("concurrent GET/PUT deadlocked")
	}

	data, err := os.ReadFile(f.store.Resolve("shared.bin"))
	require.NoError(t, err)
	require.Len(t, data, size)
	assert.Equal(t, bytes.Repeat(data[:1], size), data)
	f.requireIdle(t, "shared.bin")
}

// Operations on different paths must not wait on each other.
func TestHandle_DistinctPathsIndependent(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 201, f.do(t, put("/busy", "x")).status)

	busy := f.locks.GetOrCreate("busy")
	busy.Lock()
	defer busy.Unlock()

	done := make(chan reply, 1)
	go func() { done <- f.do(t, put("/free", "y")) }()

	select {
	case r := <-done:
		assert.Equal(t, 201, r.status)
	case <-time.After(2 * time.Second):
		t.Fatal("PUT on an unrelated path waited on a held lock")
	}
}
