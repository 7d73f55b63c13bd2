package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSServer exposes the same packet protocol over websocket for clients
// that cannot open a raw TCP connection. Each upgraded connection is
// wrapped into a net.Conn and fed to the exact session loop the TCP
// listener uses, so both transports share the registry, the players and
// every behavior above the framing.
type WSServer struct {
	srv      *Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	http *http.Server
}

// NewWSServer creates a websocket front end for srv.
func NewWSServer(srv *Server) *WSServer {
	return &WSServer{
		srv: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run listens on the configured websocket port and serves until ctx is
// cancelled.
func (w *WSServer) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.srv.cfg.BindAddress, w.srv.cfg.WSPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return w.Serve(ctx, ln)
}

// Serve accepts websocket upgrades from ln until ctx is cancelled. Upgraded
// sessions are not torn down here; they drain through the registry like
// every other session.
func (w *WSServer) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.upgrade)

	hs := &http.Server{Handler: mux}
	w.mu.Lock()
	w.http = hs
	w.mu.Unlock()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = hs.Close()
		case <-stopped:
		}
	}()

	slog.Info("websocket server started", "address", ln.Addr())
	if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server on %s: %w", ln.Addr(), err)
	}
	return nil
}

// Close stops the websocket listener.
func (w *WSServer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.http != nil {
		return w.http.Close()
	}
	return nil
}

func (w *WSServer) upgrade(rw http.ResponseWriter, req *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	w.srv.handleConn(&wsConn{Conn: conn})
}

// wsConn adapts a websocket connection to net.Conn. Writes become one
// binary message per packet; reads stitch incoming binary messages back
// into a byte stream for the packet reader.
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// CloseRead half-closes the inbound side. The underlying transport is TCP
// whenever the listener above is, which gives a true half-close; anything
// else falls back to expiring reads immediately.
func (c *wsConn) CloseRead() error {
	if tcp, ok := c.UnderlyingConn().(*net.TCPConn); ok {
		return tcp.CloseRead()
	}
	return c.SetReadDeadline(time.Now())
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
