package server

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/oxo/internal/player"
	"github.com/udisondev/oxo/internal/protocol"
	"github.com/udisondev/oxo/internal/testutil"
)

// packet bundles one received frame for channel-based assertions.
type packet struct {
	hdr     protocol.Header
	payload []byte
	err     error
}

// pipeSession registers a session backed by one end of a net.Pipe and
// returns it with the client end. Session sends block until the client end
// reads, so tests read notifications concurrently via collect or drain.
func pipeSession(t *testing.T, reg *Registry) (*Session, net.Conn) {
	t.Helper()

	client, server := testutil.PipeConn(t)
	s, err := reg.Register(server)
	require.NoError(t, err)
	return s, client
}

// loggedInSession is pipeSession plus a login under name.
func loggedInSession(t *testing.T, reg *Registry, name string) (*Session, net.Conn) {
	t.Helper()

	s, conn := pipeSession(t, reg)
	require.NoError(t, s.Login(player.New(name)))
	return s, conn
}

// collect reads n packets from conn in the background.
func collect(conn net.Conn, n int) <-chan packet {
	ch := make(chan packet, n)
	go func() {
		for _i := 0; _i < n; _i++ {
			hdr, payload, err := protocol.ReadPacket(conn)
			ch <- packet{hdr, payload, err}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// recv waits for the next collected packet and fails the test on transport
// errors or timeout.
func recv(t *testing.T, ch <-chan packet) (protocol.Header, []byte) {
	t.Helper()

	select {
	case p := <-ch:
		require.NoError(t, p.err)
		return p.hdr, p.payload
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for packet")
		return protocol.Header{}, nil
	}
}

// drain discards everything conn receives until it closes.
func drain(conn net.Conn) {
	go func() {
		_, _ = io.Copy(io.Discard, conn)
	}()
}

// invCount reports how many invitations s currently holds.
func invCount(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invitations)
}
