// Package testutil provides test clients for the room server transports.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a WebSocket test client speaking room protocol frames.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials url (ws://host:port/path) and returns a test client.
//
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// ReadFrame returns the next text frame from the server.
//
// Postcondition: Returns the frame, or fails the test on timeout.
func (c *WSClient) ReadFrame(timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return string(data)
}

// ReadUntil reads frames until one contains substr, returning that frame.
func (c *WSClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no frame containing %q within %s", substr, timeout)
		}
		if frame := c.ReadFrame(remaining); strings.Contains(frame, substr) {
			return frame
		}
	}
}

// Send writes one text frame.
func (c *WSClient) Send(frame string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.t.Fatalf("sending %q: %v", frame, err)
	}
}

// CloseNormal sends a normal-closure close message, then closes.
func (c *WSClient) CloseNormal() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

// Close drops the connection without a close handshake.
func (c *WSClient) Close() {
	c.conn.Close()
}
