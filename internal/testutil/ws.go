package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DialWS подключается к websocket endpoint сервера и возвращает Client,
// говорящий тем же пакетным протоколом поверх binary messages.
func DialWS(t testing.TB, url string) *Client {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewClient(t, &wsClientConn{Conn: conn})
}

// wsClientConn адаптирует клиентское websocket соединение к net.Conn:
// каждый Write уходит одним binary message, Read склеивает входящие
// messages обратно в поток байт.
type wsClientConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsClientConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsClientConn) Read(p []byte) (int, error) {
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

func (c *wsClientConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
