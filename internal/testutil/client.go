package testutil

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/udisondev/oxo/internal/protocol"
)

// Client упрощает написание integration тестов: управляет подключением,
// кадрированием пакетов и чтением ответов с таймаутом.
type Client struct {
	t       testing.TB
	conn    net.Conn
	timeout time.Duration
}

// Dial подключается к серверу по указанному адресу.
// Использует t.Cleanup() для автоматического закрытия соединения.
func Dial(t testing.TB, addr string) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewClient(t, conn)
}

// NewClient оборачивает готовое соединение (например, адаптер websocket).
func NewClient(t testing.TB, conn net.Conn) *Client {
	t.Helper()
	return &Client{t: t, conn: conn, timeout: 5 * time.Second}
}

// Conn returns the underlying connection.
func (c *Client) Conn() net.Conn { return c.conn }

// Close closes the connection early; tests that just leave use Cleanup.
func (c *Client) Close() error { return c.conn.Close() }

// Send frames and writes one packet, failing the test on error.
func (c *Client) Send(hdr protocol.Header, payload []byte) {
	c.t.Helper()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		c.t.Fatalf("set write deadline: %v", err)
	}
	if err := protocol.WritePacket(c.conn, hdr, payload); err != nil {
		c.t.Fatalf("send %v: %v", hdr.Type, err)
	}
}

// Recv reads the next packet, failing the test if none arrives in time.
func (c *Client) Recv() (protocol.Header, []byte) {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		c.t.Fatalf("set read deadline: %v", err)
	}
	hdr, payload, err := protocol.ReadPacket(c.conn)
	if err != nil {
		c.t.Fatalf("recv: %v", err)
	}
	return hdr, payload
}

// RecvType reads the next packet and fails the test unless it has the
// wanted type.
func (c *Client) RecvType(want protocol.PacketType) (protocol.Header, []byte) {
	c.t.Helper()
	hdr, payload := c.Recv()
	if hdr.Type != want {
		c.t.Fatalf("received %v, want %v (id=%d role=%v payload=%q)",
			hdr.Type, want, hdr.ID, hdr.Role, payload)
	}
	return hdr, payload
}

// RecvEOF asserts the server closed the connection instead of replying.
func (c *Client) RecvEOF() {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		c.t.Fatalf("set read deadline: %v", err)
	}
	if hdr, _, err := protocol.ReadPacket(c.conn); err == nil {
		c.t.Fatalf("expected EOF, received %v", hdr.Type)
	}
}

// Login logs in under name and asserts the ACK.
func (c *Client) Login(name string) {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeLogin}, []byte(name))
	c.RecvType(protocol.TypeAck)
}

// Users requests the players listing and returns it.
func (c *Client) Users() string {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeUsers}, nil)
	_, payload := c.RecvType(protocol.TypeAck)
	return string(payload)
}

// Invite offers name a game where the target plays targetRole. Returns the
// source-side invitation id from the ACK.
func (c *Client) Invite(name string, targetRole protocol.Role) uint8 {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeInvite, Role: targetRole}, []byte(name))
	hdr, _ := c.RecvType(protocol.TypeAck)
	return hdr.ID
}

// Accept accepts invitation id and returns the ACK payload (the initial
// board when this client moves first, empty otherwise).
func (c *Client) Accept(id uint8) string {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeAccept, ID: id}, nil)
	_, payload := c.RecvType(protocol.TypeAck)
	return string(payload)
}

// Decline declines invitation id and asserts the ACK.
func (c *Client) Decline(id uint8) {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeDecline, ID: id}, nil)
	c.RecvType(protocol.TypeAck)
}

// Revoke revokes invitation id and asserts the ACK.
func (c *Client) Revoke(id uint8) {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeRevoke, ID: id}, nil)
	c.RecvType(protocol.TypeAck)
}

// Move plays square in the game behind invitation id and asserts the ACK.
// For a move that ends the game use MoveEnding: the mover's own ENDED
// notification arrives before the ACK.
func (c *Client) Move(id uint8, square int) {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeMove, ID: id}, []byte(strconv.Itoa(square)))
	c.RecvType(protocol.TypeAck)
}

// MoveEnding plays the move that ends the game and returns the winner role
// from the ENDED notification that precedes the ACK.
func (c *Client) MoveEnding(id uint8, square int) protocol.Role {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeMove, ID: id}, []byte(strconv.Itoa(square)))
	hdr, _ := c.RecvType(protocol.TypeEnded)
	c.RecvType(protocol.TypeAck)
	return hdr.Role
}

// Resign gives up the game behind invitation id and returns the winner
// role from the ENDED notification that precedes the ACK.
func (c *Client) Resign(id uint8) protocol.Role {
	c.t.Helper()
	c.Send(protocol.Header{Type: protocol.TypeResign, ID: id}, nil)
	hdr, _ := c.RecvType(protocol.TypeEnded)
	c.RecvType(protocol.TypeAck)
	return hdr.Role
}
