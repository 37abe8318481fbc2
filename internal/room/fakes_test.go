package room

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// fakeConn records frames sent to it and the handlers attached to it.
type fakeConn struct {
	id      string
	sendErr error

	mu       sync.Mutex
	sent     []string
	handlers []MessageHandler
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) SendText(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) AttachHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.handlers {
		if existing == h {
			return
		}
	}
	c.handlers = append(c.handlers, h)
}

func (c *fakeConn) DetachHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.handlers {
		if existing == h {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return
		}
	}
}

func (c *fakeConn) Handlers() []MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MessageHandler(nil), c.handlers...)
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// deliver pushes a frame through every attached handler, as a transport would.
func (c *fakeConn) deliver(frame string) {
	for _, h := range c.Handlers() {
		h.OnMessage(frame)
	}
}

// recorder captures calls into the engine and chat sink in order.
type recorder struct {
	mu    sync.Mutex
	calls []string

	addErr     error
	commandErr error
	removeErr  error
	chatErr    error
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) AddUserToRoom(userID, username string) error {
	r.record("addUserToRoom(%s,%s)", userID, username)
	return r.addErr
}

func (r *recorder) RemoveUserFromRoom(userID string) error {
	r.record("removeUserFromRoom(%s)", userID)
	return r.removeErr
}

func (r *recorder) Command(userID, text string) error {
	r.record("command(%s,%s)", userID, text)
	return r.commandErr
}

func (r *recorder) ChatEvent(username, content string) error {
	r.record("chatEvent(%s,%s)", username, content)
	return r.chatErr
}

// fakeLink is a Link fed from a channel of frames.
type fakeLink struct {
	id      string
	inbound chan string
	readErr error

	mu     sync.Mutex
	sent   []string
	closed bool
	once   sync.Once
	done   chan struct{}
}

func newFakeLink(id string) *fakeLink {
	return &fakeLink{
		id:      id,
		inbound: make(chan string, 64),
		done:    make(chan struct{}),
	}
}

func (l *fakeLink) ID() string { return l.id }

func (l *fakeLink) SendText(frame string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("link closed")
	}
	l.sent = append(l.sent, frame)
	return nil
}

func (l *fakeLink) ReadFrame() (string, error) {
	select {
	case frame, ok := <-l.inbound:
		if !ok {
			if l.readErr != nil {
				return "", l.readErr
			}
			return "", io.EOF
		}
		return frame, nil
	case <-l.done:
		return "", errors.New("use of closed link")
	}
}

func (l *fakeLink) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
	})
	return nil
}

func (l *fakeLink) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}
