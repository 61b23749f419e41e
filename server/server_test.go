package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarot/protocol"
	"tarot/transport"
)

type client = transport.Duplex[protocol.Serverbound, protocol.Clientbound]

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Logger = quietLogger()
	s, err := NewServer(opts)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return s
}

func dialClient(t *testing.T, network, addr string) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, network, addr)
	require.NoError(t, err)
	c := transport.NewDuplex(conn, protocol.ServerboundCodec(), protocol.ClientboundCodec(),
		transport.Options{Logger: quietLogger()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func recv(t *testing.T, c *client) protocol.Clientbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pkt, err := c.Recv(ctx)
	require.NoError(t, err)
	return pkt
}

func TestServer_PingAndJoin(t *testing.T) {
	s := startServer(t, Options{Name: "table-1"})
	c := dialClient(t, transport.NetworkTCP, s.Addr())

	require.NoError(t, c.Submit(protocol.Ping{}))
	require.NoError(t, c.Submit(protocol.Join{}))

	assert.Equal(t, protocol.PingAnswer{Text: "table-1"}, recv(t, c))
	assert.Equal(t, protocol.Accept{}, recv(t, c))
	assert.Equal(t, 1, s.Seated())
}

func TestServer_DefaultName(t *testing.T) {
	s := startServer(t, Options{})
	c := dialClient(t, transport.NetworkTCP, s.Addr())

	require.NoError(t, c.Submit(protocol.Ping{}))
	assert.Equal(t, protocol.PingAnswer{Text: defaultName}, recv(t, c))
}

func TestServer_Networks(t *testing.T) {
	tests := []struct {
		name    string
		network string
		host    func(t *testing.T) string
		skip    bool
	}{
		{name: "tcp", network: NetworkTCP},
		{name: "tcp4", network: NetworkTCP4},
		{
			name:    "unix",
			network: NetworkUnix,
			host:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "tarot.sock") },
			skip:    runtime.GOOS == "windows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.skip {
				t.Skip("network not available on this platform")
			}
			opts := Options{Network: tt.network, Name: tt.name}
			if tt.host != nil {
				opts.Host = tt.host(t)
			}
			s := startServer(t, opts)
			c := dialClient(t, tt.network, s.Addr())

			require.NoError(t, c.Submit(protocol.Ping{}))
			assert.Equal(t, protocol.PingAnswer{Text: tt.name}, recv(t, c))
		})
	}
}

func TestServer_WebSocket(t *testing.T) {
	s := startServer(t, Options{Name: "ws-table", WSAddr: "127.0.0.1:0"})
	require.NotEmpty(t, s.WSURL())

	c := dialClient(t, transport.NetworkWS, s.WSURL())
	require.NoError(t, c.Submit(protocol.Join{}))
	require.NoError(t, c.Submit(protocol.Ping{}))

	assert.Equal(t, protocol.Accept{}, recv(t, c))
	assert.Equal(t, protocol.PingAnswer{Text: "ws-table"}, recv(t, c))
}

func TestServer_UnsupportedNetwork(t *testing.T) {
	_, err := NewServer(Options{Network: "udp"})
	require.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestServer_StartTwice(t *testing.T) {
	s := startServer(t, Options{})
	require.ErrorIs(t, s.Start(), ErrAlreadyStarted)
}

func TestServer_ShutdownNotStarted(t *testing.T) {
	s, err := NewServer(Options{Logger: quietLogger()})
	require.NoError(t, err)
	require.ErrorIs(t, s.Shutdown(context.Background()), ErrNotStarted)
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	s := startServer(t, Options{})
	c := dialClient(t, transport.NetworkTCP, s.Addr())

	require.NoError(t, c.Submit(protocol.Ping{}))
	recv(t, c)
	require.Eventually(t, func() bool { return s.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.Sessions())

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	_, err := c.Recv(rctx)
	require.ErrorIs(t, err, transport.ErrStreamClosed)
}

func TestServer_CorruptClientIsDropped(t *testing.T) {
	s := startServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, transport.NetworkTCP, s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	// Unknown serverbound tag.
	_, err = conn.Write([]byte{9, 0, 0, 0})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestServer_NoSessionsTrackedAfterShutdown(t *testing.T) {
	s := startServer(t, Options{WSAddr: "127.0.0.1:0"})
	wsURL := s.WSURL()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.False(t, s.track())
	assert.Equal(t, 0, s.Sessions())

	// The websocket listener is gone as well.
	_, err := http.Get("http" + strings.TrimPrefix(wsURL, "ws"))
	require.Error(t, err)
}

func TestServer_RestartTracksSessions(t *testing.T) {
	s := startServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	require.NoError(t, s.Start())
	c := dialClient(t, transport.NetworkTCP, s.Addr())
	require.NoError(t, c.Submit(protocol.Ping{}))
	assert.Equal(t, protocol.PingAnswer{Text: defaultName}, recv(t, c))
}

// lockedBuffer collects log output written from session goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_LogsUseErrKey(t *testing.T) {
	logs := &lockedBuffer{}
	s, err := NewServer(Options{Logger: slog.New(slog.NewTextHandler(logs, nil))})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, transport.NetworkTCP, s.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte{9, 0, 0, 0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "session aborted")
	}, 2*time.Second, 5*time.Millisecond)
	out := logs.String()
	assert.Contains(t, out, " err=")
	assert.NotContains(t, out, " error=")
}
