package room

import "context"

// Session joins a transport Link with the Inbox that serialises its inbound
// frames. It implements Conn.
type Session struct {
	link  Link
	inbox *Inbox
}

// NewSession wraps link with an inbox of the given size.
//
// Precondition: link must be non-nil.
func NewSession(link Link, inboxSize int) *Session {
	return &Session{
		link:  link,
		inbox: NewInbox(inboxSize),
	}
}

// ID returns the link's connection identifier.
func (s *Session) ID() string { return s.link.ID() }

// SendText writes a frame to the link.
func (s *Session) SendText(frame string) error { return s.link.SendText(frame) }

// AttachHandler routes the session's inbound frames to h.
func (s *Session) AttachHandler(h MessageHandler) { s.inbox.AttachHandler(h) }

// DetachHandler stops routing inbound frames to h.
func (s *Session) DetachHandler(h MessageHandler) { s.inbox.DetachHandler(h) }

// Inbox returns the session's inbound queue.
func (s *Session) Inbox() *Inbox { return s.inbox }

// SessionServer serves transport links through a Router with a fixed inbox
// size. Transports hold one and call HandleSession per accepted connection.
type SessionServer struct {
	Router    *Router
	InboxSize int
}

// HandleSession runs link until it closes or ctx ends.
func (s SessionServer) HandleSession(ctx context.Context, link Link) error {
	return s.Router.Serve(ctx, link, s.InboxSize)
}
