// Package server runs a tarot lobby: it accepts player connections over a
// stream listener (and optionally websockets) and answers their packets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"tarot/transport"
)

var (
	ErrAlreadyStarted     = errors.New("server: already started")
	ErrNotStarted         = errors.New("server: not started")
	ErrUnsupportedNetwork = errors.New("server: unsupported network")
)

type Server struct {
	opts Options

	ln     net.Listener
	wsLn   net.Listener
	wsSrv  *http.Server
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool // guarded by mu; no session is added to wg once set
	wg       sync.WaitGroup
	sessions atomic.Int64
	seated   atomic.Int64

	started atomic.Bool
}

func NewServer(opts Options) (*Server, error) {
	opts.applyDefaults()
	if !supportedNetworks[opts.Network] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, opts.Network)
	}
	if opts.Network == NetworkUnix && opts.Host == "" {
		return nil, fmt.Errorf("server: unix network needs a socket path in Host")
	}
	return &Server{opts: opts}, nil
}

func (s *Server) log() *slog.Logger { return s.opts.Logger }

// Addr returns the stream listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// WSURL returns the websocket endpoint, or "" when the listener is disabled.
func (s *Server) WSURL() string {
	if s.wsLn == nil {
		return ""
	}
	return "ws://" + s.wsLn.Addr().String() + WebSocketPath
}

// Sessions returns the number of open player sessions.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

// Seated returns how many Join requests were accepted so far.
func (s *Server) Seated() int { return int(s.seated.Load()) }

func (s *Server) listenAddr() string {
	if s.opts.Network == NetworkUnix {
		return s.opts.Host
	}
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(int(s.opts.Port)))
}

func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen(s.opts.Network, s.listenAddr())
	if err != nil {
		s.started.Store(false)
		return err
	}

	if s.opts.WSAddr != "" {
		wsLn, err := net.Listen("tcp", s.opts.WSAddr)
		if err != nil {
			_ = ln.Close()
			s.started.Store(false)
			return err
		}
		mux := http.NewServeMux()
		mux.HandleFunc(WebSocketPath, s.handleWebSocket)
		s.wsLn = wsLn
		s.wsSrv = &http.Server{Handler: mux}
	}

	s.ln = ln
	s.mu.Lock()
	s.closing = false
	s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.acceptLoop()
	if s.wsSrv != nil {
		go func() {
			if err := s.wsSrv.Serve(s.wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log().Error("websocket listener stopped", "err", err)
			}
		}()
	}
	s.log().Info("server listening", "addr", s.Addr(), "ws", s.WSURL(), "name", s.opts.Name)
	return nil
}

// Shutdown stops accepting players, asks every session to finish, and waits
// for them until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	_ = s.ln.Close()
	s.cancel()

	var err error
	if s.wsSrv != nil {
		err = s.wsSrv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}

	s.started.Store(false)
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		if !s.track() {
			_ = conn.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// track registers a session with wg, unless Shutdown already started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := transport.AcceptWebSocket(w, r, nil)
	if err != nil {
		s.log().Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.serveConn(conn)
}
