package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	sendQueueSize = 32
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 54 * time.Second

	// Inbound frames carry nothing; both endpoints are delivery-only.
	maxReadBytes = 512
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBacklogged = errors.New("send queue full")
)

// wsConn wraps a websocket with a buffered outbound queue and a single
// writer goroutine, so a slow or blocked peer never stalls delivery to
// anyone else. It satisfies realtime.Conn.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	// teardown runs exactly once on close, after done is closed: it
	// unsubscribes broker channels and removes any registry entry, in
	// that order. Set before the pumps start.
	teardown func()
	once     sync.Once
}

func newConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:   ulid.Make().String(),
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Send enqueues a payload without blocking. Closed or backlogged
// connections lose the payload; the caller treats that as a delivery miss.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBacklogged
	}
}

// close tears the connection down exactly once, no matter how many
// signals race into it (read error, write error, explicit close).
func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		if c.teardown != nil {
			c.teardown()
		}
		_ = c.ws.Close()
	})
}

// closeWithReason sends a close frame with the given code before tearing
// down, so clients can distinguish policy rejections from normal closes.
func (c *wsConn) closeWithReason(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	c.close()
}

// writePump is the connection's only writer: queued payloads plus
// keepalive pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump discards inbound frames and returns on disconnect or protocol
// error; it is how the gateway notices the peer going away.
func (c *wsConn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxReadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
