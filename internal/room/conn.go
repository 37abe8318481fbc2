// Package room implements the connection/session layer of a room server:
// the per-room connection registry, inbound frame parsing and the protocol
// router that turns frames into room engine calls and chat events.
package room

// MessageHandler receives inbound text frames for one connection.
type MessageHandler interface {
	OnMessage(frame string)
}

// Conn is a live connection as seen by the Router.
type Conn interface {
	// ID returns the opaque connection identifier. It is stable for the
	// lifetime of the connection and unique among open connections.
	ID() string
	// SendText writes one text frame to the peer.
	SendText(frame string) error
	// AttachHandler routes subsequent inbound frames to h, replacing any
	// handler previously attached.
	AttachHandler(h MessageHandler)
	// DetachHandler stops delivery to h. Detaching a handler that is not
	// attached is a no-op.
	DetachHandler(h MessageHandler)
}

// Link is the transport side of a connection: something that can read and
// write text frames. Transports implement Link and hand it to Router.Serve.
type Link interface {
	ID() string
	SendText(frame string) error
	// ReadFrame blocks for the next inbound frame. A clean close from either
	// side is reported as io.EOF.
	ReadFrame() (string, error)
	Close() error
}

// Engine is the room engine facade the Router drives.
type Engine interface {
	AddUserToRoom(userID, username string) error
	RemoveUserFromRoom(userID string) error
	Command(userID, text string) error
}

// ChatSink attributes free-text chat to a player for downstream broadcast.
type ChatSink interface {
	ChatEvent(username, content string) error
}
