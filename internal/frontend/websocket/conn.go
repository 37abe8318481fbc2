// Package websocket serves the room protocol over WebSocket text messages,
// one frame per message.
package websocket

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnOptions tunes a Conn's limits and keepalive.
type ConnOptions struct {
	ReadLimit    int64
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
}

// Conn adapts a gorilla WebSocket connection to room.Link.
type Conn struct {
	id   string
	ws   *websocket.Conn
	opts ConnOptions

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws and starts its keepalive pings.
//
// Precondition: ws must be an open connection; opts durations must be positive.
// Postcondition: Returns a Conn with a fresh connection ID.
func NewConn(ws *websocket.Conn, opts ConnOptions) *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		opts: opts,
		done: make(chan struct{}),
	}

	ws.SetReadLimit(opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.pingLoop()
	return c
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// ReadFrame returns the next text message. Binary messages are skipped. A
// normal close from the peer, or a local Close, is reported as io.EOF.
func (c *Conn) ReadFrame() (string, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return "", io.EOF
			}
			select {
			case <-c.done:
				return "", io.EOF
			default:
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

// SendText writes frame as a single text message.
func (c *Conn) SendText(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Close sends a normal close message and closes the connection. It is safe
// to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
