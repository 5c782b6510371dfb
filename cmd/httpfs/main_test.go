package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/marmos91/httpfs/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseArgs([]string{"-t", "8", "--root", "/srv", "--log-level", "debug", "8081"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 8081, opts.port)
	assert.Equal(t, "8", opts.threads)
	assert.Equal(t, "/srv", opts.root)
	assert.Equal(t, "debug", opts.logLevel)
}

func TestParseArgs_MissingPort(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs([]string{"-t", "2"}, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestParseArgs_InvalidPort(t *testing.T) {
	for _, arg := range []string{"http", "0", "70000", "-1"} {
		t.Run(arg, func(t *testing.T) {
			_, err := parseArgs([]string{"--", arg}, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestRun_MissingPortExitsNonZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "<port>")
}

func TestApplyOptions_Threads(t *testing.T) {
	tests := []struct {
		name        string
		threads     string
		wantThreads int
		wantQueue   int
		wantWarning bool
	}{
		{"absent keeps config", "", 4, 4, false},
		{"valid overrides", "16", 16, 16, false},
		{"unparsable keeps config", "many", 4, 4, true},
		{"zero keeps config", "0", 4, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetDefaultConfig()
			var stderr bytes.Buffer

			applyOptions(cfg, &options{threads: tt.threads, port: 9000}, &stderr)

			assert.Equal(t, tt.wantThreads, cfg.Adapters.HTTP.Threads)
			assert.Equal(t, tt.wantQueue, cfg.Adapters.HTTP.QueueCapacity)
			assert.Equal(t, 9000, cfg.Adapters.HTTP.Port)
			assert.Equal(t, tt.wantWarning, stderr.Len() > 0)
		})
	}
}

func TestApplyOptions_ExplicitQueueKept(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Adapters.HTTP.QueueCapacity = 64

	applyOptions(cfg, &options{threads: "2", port: 9000}, io.Discard)

	assert.Equal(t, 2, cfg.Adapters.HTTP.Threads)
	assert.Equal(t, 64, cfg.Adapters.HTTP.QueueCapacity)
}

func TestApplyOptions_RootAndLogLevel(t *testing.T) {
	cfg := config.GetDefaultConfig()

	applyOptions(cfg, &options{root: "/data", logLevel: "warn", port: 9000}, io.Discard)

	assert.Equal(t, "/data", cfg.Store.Filesystem["path"])
	assert.Equal(t, "WARN", cfg.Logging.Level)
	require.NoError(t, config.Validate(cfg))
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpfs.yaml")
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, runInit([]string{"--config", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), path)
	assert.FileExists(t, path)

	assert.Equal(t, 1, runInit([]string{"--config", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "already exists")

	assert.Equal(t, 0, runInit([]string{"--config", path, "--force"}, &stdout, &stderr))
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	root := t.TempDir()
	cfg := config.GetDefaultConfig()
	applyOptions(cfg, &options{root: root, threads: "2", port: port}, io.Discard)
	cfg.Server.ShutdownTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", addr)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	body := "served"
	_, err = fmt.Fprintf(conn, "PUT /out.txt HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)
	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	_ = conn.Close()
	assert.Contains(t, string(reply), "201 Created")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	data, err := os.ReadFile(filepath.Join(root, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}
