// Package broadcast turns chat and engine output into outbound frames and
// fans them out to every connection registered with a room.
package broadcast

import (
	"fmt"
	"iter"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/engine"
	"github.com/cory-johannsen/roomserver/internal/room"
)

// Outbound routing prefixes.
const (
	TargetPlayer         = "player"
	TargetPlayerLocation = "playerLocation"
	AllPlayers           = "*"
)

// Payload types.
const (
	TypeChat     = "chat"
	TypeEvent    = "event"
	TypeLocation = "location"
	TypeExit     = "exit"
)

// SessionSource enumerates the connections a frame should reach.
type SessionSource interface {
	Sessions() iter.Seq[room.Conn]
}

// Broadcaster implements room.ChatSink and engine.Responder.
type Broadcaster struct {
	src    SessionSource
	logger *zap.Logger
}

var (
	_ room.ChatSink    = (*Broadcaster)(nil)
	_ engine.Responder = (*Broadcaster)(nil)
)

// New creates a Broadcaster delivering to every session in src.
//
// Precondition: src and logger must be non-nil.
func New(src SessionSource, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{src: src, logger: logger}
}

// ChatEvent broadcasts a chat line attributed to username.
func (b *Broadcaster) ChatEvent(username, content string) error {
	return b.emit(TargetPlayer, AllPlayers,
		field{"type", TypeChat},
		field{"username", username},
		field{"content", content},
	)
}

// PlayerEvent sends text to a single player.
func (b *Broadcaster) PlayerEvent(userID, text string) error {
	return b.emit(TargetPlayer, userID,
		field{"type", TypeEvent},
		field{"content", map[string]string{userID: text}},
	)
}

// RoomEvent sends text to everyone, with selfText shown to self instead.
func (b *Broadcaster) RoomEvent(text, self, selfText string) error {
	content := map[string]string{AllPlayers: text}
	if self != "" {
		content[self] = selfText
	}
	return b.emit(TargetPlayer, AllPlayers,
		field{"type", TypeEvent},
		field{"content", content},
	)
}

// Location describes the room to a single player.
func (b *Broadcaster) Location(userID string, loc engine.Location) error {
	exits := loc.Exits
	if exits == nil {
		exits = map[string]string{}
	}
	return b.emit(TargetPlayer, userID,
		field{"type", TypeLocation},
		field{"name", loc.Name},
		field{"fullName", loc.FullName},
		field{"description", loc.Description},
		field{"exits", exits},
	)
}

// Exit tells a player they are leaving through exitID.
func (b *Broadcaster) Exit(userID, exitID, text string) error {
	return b.emit(TargetPlayerLocation, userID,
		field{"type", TypeExit},
		field{"exitId", exitID},
		field{"content", text},
	)
}

type field struct {
	path  string
	value any
}

// buildFrame assembles an outbound frame "<target>,<recipient>,<json>".
func buildFrame(target, recipient string, fields ...field) (string, error) {
	js := "{}"
	for _, f := range fields {
		var err error
		js, err = sjson.Set(js, f.path, f.value)
		if err != nil {
			return "", fmt.Errorf("setting %q: %w", f.path, err)
		}
	}
	return target + "," + recipient + "," + js, nil
}

func (b *Broadcaster) emit(target, recipient string, fields ...field) error {
	frame, err := buildFrame(target, recipient, fields...)
	if err != nil {
		return fmt.Errorf("building %s frame: %w", target, err)
	}
	b.send(frame)
	return nil
}

// send delivers frame to every session. A failed send is logged and the
// fan-out continues.
func (b *Broadcaster) send(frame string) {
	delivered, failed := 0, 0
	for conn := range b.src.Sessions() {
		if err := conn.SendText(frame); err != nil {
			failed++
			b.logger.Warn("broadcast send failed",
				zap.Error(&room.TransportError{ConnID: conn.ID(), Op: "send", Err: err}),
			)
			continue
		}
		delivered++
	}
	if ce := b.logger.Check(zap.DebugLevel, "broadcast"); ce != nil {
		ce.Write(zap.String("frame", frame), zap.Int("delivered", delivered), zap.Int("failed", failed))
	}
}
