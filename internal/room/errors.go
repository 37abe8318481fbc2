package room

import (
	"errors"
	"fmt"
)

// ParseError reports a frame or payload that could not be parsed.
// The event that produced it is discarded.
type ParseError struct {
	// Frame is the raw inbound frame.
	Frame string
	// Err is the underlying cause.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing frame %q: %v", e.Frame, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a well-formed payload missing a required key.
type ValidationError struct {
	// Verb is the routing verb of the rejected frame.
	Verb Verb
	// Field is the missing JSON key.
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s payload missing required field %q", e.Verb, e.Field)
}

// TransportError reports a failed read or write on a single connection.
// It never affects other connections.
type TransportError struct {
	ConnID string
	// Op is "send", "read" or "negotiate".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection %s: %s: %v", e.ConnID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EngineError reports a failed call into the room engine or the chat sink.
type EngineError struct {
	// Op names the collaborator call, e.g. "addUserToRoom".
	Op     string
	UserID string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s for user %q: %v", e.Op, e.UserID, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ErrInboxClosed is returned by Inbox.Post once the inbox no longer accepts frames.
var ErrInboxClosed = errors.New("inbox closed")

// IsRecoverable reports whether err is a parse or validation failure, i.e. a
// bad frame that is logged and dropped rather than a collaborator or
// transport failure.
func IsRecoverable(err error) bool {
	var pe *ParseError
	var ve *ValidationError
	return errors.As(err, &pe) || errors.As(err, &ve)
}
