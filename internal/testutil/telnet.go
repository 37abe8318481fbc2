package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// TelnetClient is a line-oriented test client for the telnet transport.
type TelnetClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewTelnetClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected TelnetClient or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	client := &TelnetClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}

	t.Logf("telnet client connected to %s [%s]", addr, time.Since(start))
	return client
}

// ReadFrame returns the next line from the server with telnet negotiation
// bytes and the trailing \r\n removed.
//
// Postcondition: Returns the frame, or fails the test on timeout.
func (c *TelnetClient) ReadFrame(timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("reading frame: got %q, error: %v", line, err)
	}
	line = strings.TrimRight(line, "\r\n")
	// Negotiation arrives as IAC <cmd> <opt> ahead of the first line.
	for len(line) >= 3 && line[0] == 0xFF {
		line = line[3:]
	}
	return line
}

// ReadUntil reads frames until one contains substr, returning that frame.
//
// Precondition: substr must be non-empty.
// Postcondition: Returns the matching frame, or fails on timeout.
func (c *TelnetClient) ReadUntil(substr string, timeout time.Duration) string {
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

// Send writes one frame to the server, appending \r\n.
//
// Precondition: frame should not contain newline characters.
func (c *TelnetClient) Send(frame string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", frame); err != nil {
		c.t.Fatalf("sending %q: %v", frame, err)
	}
}

// Close closes the underlying connection.
func (c *TelnetClient) Close() {
	c.conn.Close()
}
