package room

import (
	"context"
	"sync"
)

// Inbox is a single-consumer queue of inbound frames for one connection.
// Run is the only consumer, so frames for a connection are handled one at a
// time and in arrival order.
type Inbox struct {
	frames chan string
	quit   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	handler MessageHandler
	closed  bool
}

// NewInbox creates an Inbox holding up to size undelivered frames.
//
// Postcondition: Returns an open Inbox. size values below 1 are treated as 1.
func NewInbox(size int) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{
		frames: make(chan string, size),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// AttachHandler routes subsequent frames to h.
func (i *Inbox) AttachHandler(h MessageHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handler = h
}

// DetachHandler clears the handler if it is h.
func (i *Inbox) DetachHandler(h MessageHandler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.handler == h {
		i.handler = nil
	}
}

func (i *Inbox) current() MessageHandler {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.handler
}

// Post enqueues a frame, blocking while the inbox is full.
//
// Postcondition: Returns nil once the frame is queued, ErrInboxClosed after
// Close, or ctx.Err() if ctx ends first.
func (i *Inbox) Post(ctx context.Context, frame string) error {
	select {
	case <-i.quit:
		return ErrInboxClosed
	default:
	}
	select {
	case i.frames <- frame:
		return nil
	case <-i.quit:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers queued frames to the attached handler until Close is called
// and the queue has drained. Frames arriving while no handler is attached are
// dropped.
func (i *Inbox) Run() {
	defer close(i.done)
	for {
		select {
		case frame := <-i.frames:
			i.deliver(frame)
		case <-i.quit:
			for {
				select {
				case frame := <-i.frames:
					i.deliver(frame)
				default:
					return
				}
			}
		}
	}
}

func (i *Inbox) deliver(frame string) {
	if h := i.current(); h != nil {
		h.OnMessage(frame)
	}
}

// Close stops accepting frames. Frames already queued are still delivered.
// Close is idempotent.
func (i *Inbox) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.closed {
		i.closed = true
		close(i.quit)
	}
}

// Done is closed when Run has returned.
func (i *Inbox) Done() <-chan struct{} {
	return i.done
}
