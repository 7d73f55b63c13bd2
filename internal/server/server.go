// Package server hosts the match server: the TCP accept loop, the
// per-connection session loop speaking the framed packet protocol, the
// session and invitation bookkeeping, and graceful shutdown that lets
// in-flight games send their final notifications before the process exits.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/oxo/internal/config"
	"github.com/udisondev/oxo/internal/player"
	"github.com/udisondev/oxo/internal/protocol"
)

// Server accepts client connections and runs one session loop per
// connection. All sessions share one client registry and one player
// registry, so usernames and ratings are global to the process.
type Server struct {
	cfg      config.Server
	port     int
	registry *Registry
	players  *player.Registry

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server that will listen on port when Run is called.
func New(cfg config.Server, port int) *Server {
	return &Server{
		cfg:      cfg,
		port:     port,
		registry: NewRegistry(cfg.MaxClients),
		players:  player.NewRegistry(),
	}
}

// Registry returns the client registry (shared with the websocket
// listener and used by tests to observe quiescence).
func (srv *Server) Registry() *Registry { return srv.registry }

// Players returns the player registry.
func (srv *Server) Players() *player.Registry { return srv.players }

// Addr returns the listen address, nil before Run or Serve.
func (srv *Server) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Close closes the listener and stops the accept loop.
func (srv *Server) Close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener != nil {
		return srv.listener.Close()
	}
	return nil
}

// Run listens on the configured address and serves until ctx is cancelled
// and every session has drained.
func (srv *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", srv.cfg.BindAddress, srv.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return srv.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, then runs the
// shutdown sequence: stop accepting, half-close every session, wait for
// the session loops to finish. It returns once every connection goroutine
// has exited.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			srv.Shutdown()
		case <-stopped:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("server started", "address", ln.Addr())
		srv.acceptLoop(ctx, &wg, ln)
	}()
	wg.Wait()

	// Sessions on other listeners (the websocket transport) share the
	// registry but not this WaitGroup; quiescence means an empty registry.
	srv.registry.WaitForEmpty()

	slog.Info("server stopped", "address", ln.Addr())
	return nil
}

// Shutdown stops accepting, half-closes every live session and blocks
// until the registry is empty. Session loops keep running through it:
// each sees EOF, resigns or withdraws what it holds (peers still receive
// those notifications) and unregisters itself.
func (srv *Server) Shutdown() {
	slog.Info("shutting down", "sessions", srv.registry.Len())
	_ = srv.Close()
	srv.registry.ShutdownAll()
	srv.registry.WaitForEmpty()
}

func (srv *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("failed to accept connection", "error", err)
				continue
			}
			if tcp, ok := conn.(*net.TCPConn); ok {
				_ = tcp.SetKeepAlive(true)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				srv.handleConn(conn)
			}()
		}
	}
}

// handleConn runs one session from registration to teardown. The loop ends
// when the read side of the connection goes away, whether the client hung
// up or shutdown half-closed it; the teardown then logs out the session,
// which fires the revoke/decline/resign cascade toward its peers.
func (srv *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	s, err := srv.registry.Register(conn)
	if err != nil {
		slog.Warn("rejecting connection", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	slog.Info("new connection", "remote", s.IP())

	defer func() {
		if err := s.Logout(); err != nil && !errors.Is(err, ErrNotLoggedIn) {
			slog.Debug("logout on disconnect", "remote", s.IP(), "error", err)
		}
		srv.registry.Unregister(s)
		slog.Info("connection closed", "remote", s.IP())
	}()

	for {
		hdr, payload, err := protocol.ReadPacket(conn)
		if err != nil {
			slog.Debug("session loop ended", "remote", s.IP(), "error", err)
			return
		}
		srv.dispatch(s, hdr, payload)
	}
}
