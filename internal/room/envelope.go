package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Routing verbs recognised on the wire.
const (
	VerbHello   = "roomHello"
	VerbRoom    = "room"
	VerbGoodbye = "roomGoodbye"
	VerbAck     = "ack"
)

// Payload keys.
const (
	KeyUserID   = "userId"
	KeyUsername = "username"
	KeyContent  = "content"
)

// CommandPrefix marks room content as a command rather than chat.
const CommandPrefix = "/"

// SupportedVersions lists the protocol versions announced in the ack frame.
var SupportedVersions = []int{1}

// Verb classifies an inbound frame.
type Verb int8

const (
	VerbUnknown Verb = iota
	VerbJoin
	VerbCommand
	VerbLeave
)

func (v Verb) String() string {
	switch v {
	case VerbJoin:
		return VerbHello
	case VerbCommand:
		return VerbRoom
	case VerbLeave:
		return VerbGoodbye
	default:
		return "unknown"
	}
}

// Envelope is a parsed inbound frame. The concrete type is one of
// JoinRequest, RoomCommand, LeaveRequest or Unknown.
type Envelope interface {
	Verb() Verb
	// RoomTarget is the room identifier from the routing prefix. It is
	// informational only.
	RoomTarget() string
	isEnvelope()
}

// JoinRequest is a roomHello frame.
type JoinRequest struct {
	Target   string
	UserID   string
	Username string
	// UsernameDefaulted is set when the payload carried no username and
	// UserID was substituted.
	UsernameDefaulted bool
}

// RoomCommand is a room frame carrying either a /command or chat text.
type RoomCommand struct {
	Target            string
	UserID            string
	Username          string
	UsernameDefaulted bool
	Content           string
}

// LeaveRequest is a roomGoodbye frame.
type LeaveRequest struct {
	Target string
	UserID string
}

// Unknown is any frame whose verb is not recognised. Its payload is never parsed.
type Unknown struct {
	RawVerb string
	Target  string
	Raw     string
}

func (JoinRequest) Verb() Verb  { return VerbJoin }
func (RoomCommand) Verb() Verb  { return VerbCommand }
func (LeaveRequest) Verb() Verb { return VerbLeave }
func (Unknown) Verb() Verb      { return VerbUnknown }

func (j JoinRequest) RoomTarget() string  { return j.Target }
func (c RoomCommand) RoomTarget() string  { return c.Target }
func (l LeaveRequest) RoomTarget() string { return l.Target }
func (u Unknown) RoomTarget() string      { return u.Target }

func (JoinRequest) isEnvelope()  {}
func (RoomCommand) isEnvelope()  {}
func (LeaveRequest) isEnvelope() {}
func (Unknown) isEnvelope()      {}

// IsCommand reports whether Content starts with the command prefix.
func (c RoomCommand) IsCommand() bool {
	return strings.HasPrefix(c.Content, CommandPrefix)
}

// CommandText returns Content with the command prefix removed. The remainder
// is not trimmed.
func (c RoomCommand) CommandText() string {
	return strings.TrimPrefix(c.Content, CommandPrefix)
}

// SplitRouting splits a frame into verb, room target and payload. Only the
// first two commas are significant; missing parts are returned empty.
func SplitRouting(frame string) (verb, target, payload string) {
	parts := strings.SplitN(frame, ",", 3)
	verb = parts[0]
	if len(parts) > 1 {
		target = parts[1]
	}
	if len(parts) > 2 {
		payload = parts[2]
	}
	return verb, target, payload
}

// ParseFrame classifies and parses a single inbound frame.
//
// A known verb without userId (or a room frame without content) is rejected
// rather than passed on with an empty value, so the engine never sees a
// player with no identity. The rejected event is logged and discarded like
// any other malformed frame.
//
// Postcondition: Returns a non-nil Envelope, or a *ParseError when a known
// verb carries a payload that is not a JSON object, or a *ValidationError when
// a required key is absent.
func ParseFrame(frame string) (Envelope, error) {
	verb, target, payload := SplitRouting(frame)

	switch verb {
	case VerbHello:
		obj, err := parsePayload(frame, payload)
		if err != nil {
			return nil, err
		}
		userID, ok := stringField(obj, KeyUserID)
		if !ok {
			return nil, &ValidationError{Verb: VerbJoin, Field: KeyUserID}
		}
		username, defaulted := usernameOrUserID(obj, userID)
		return JoinRequest{
			Target:            target,
			UserID:            userID,
			Username:          username,
			UsernameDefaulted: defaulted,
		}, nil

	case VerbRoom:
		obj, err := parsePayload(frame, payload)
		if err != nil {
			return nil, err
		}
		userID, ok := stringField(obj, KeyUserID)
		if !ok {
			return nil, &ValidationError{Verb: VerbCommand, Field: KeyUserID}
		}
		content, ok := stringField(obj, KeyContent)
		if !ok {
			return nil, &ValidationError{Verb: VerbCommand, Field: KeyContent}
		}
		username, defaulted := usernameOrUserID(obj, userID)
		return RoomCommand{
			Target:            target,
			UserID:            userID,
			Username:          username,
			UsernameDefaulted: defaulted,
			Content:           content,
		}, nil

	case VerbGoodbye:
		obj, err := parsePayload(frame, payload)
		if err != nil {
			return nil, err
		}
		userID, ok := stringField(obj, KeyUserID)
		if !ok {
			return nil, &ValidationError{Verb: VerbLeave, Field: KeyUserID}
		}
		return LeaveRequest{Target: target, UserID: userID}, nil
	}

	return Unknown{RawVerb: verb, Target: target, Raw: frame}, nil
}

func parsePayload(frame, payload string) (gjson.Result, error) {
	if strings.TrimSpace(payload) == "" {
		return gjson.Result{}, &ParseError{Frame: frame, Err: errors.New("empty payload")}
	}
	if !gjson.Valid(payload) {
		return gjson.Result{}, &ParseError{Frame: frame, Err: errors.New("invalid JSON payload")}
	}
	obj := gjson.Parse(payload)
	if !obj.IsObject() {
		return gjson.Result{}, &ParseError{Frame: frame, Err: errors.New("payload is not a JSON object")}
	}
	return obj, nil
}

// stringField returns the value of key rendered as a string. JSON null and
// absent keys are reported as missing.
func stringField(obj gjson.Result, key string) (string, bool) {
	v := obj.Get(gjson.Escape(key))
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	return v.String(), true
}

func usernameOrUserID(obj gjson.Result, userID string) (string, bool) {
	if name, ok := stringField(obj, KeyUsername); ok {
		return name, false
	}
	return userID, true
}

// AckFrame builds the acknowledgement frame sent when a connection opens,
// e.g. ack,{"version":[1]}.
func AckFrame(versions ...int) string {
	if len(versions) == 0 {
		versions = SupportedVersions
	}
	body, err := sjson.Set("", "version", versions)
	if err != nil {
		// versions is always a plain int slice
		panic(fmt.Sprintf("building ack frame: %v", err))
	}
	return VerbAck + "," + body
}
