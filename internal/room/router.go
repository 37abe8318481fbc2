package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ClosePolicy decides what a transport close means for players who joined
// over the closing connection.
type ClosePolicy int8

const (
	// LeaveMessageOnly keeps players in the room until they send roomGoodbye.
	LeaveMessageOnly ClosePolicy = iota
	// ReapOnClose removes every player a connection still owns when that
	// connection closes. A player is owned by the connection that sent its
	// most recent roomHello.
	ReapOnClose
)

func (p ClosePolicy) String() string {
	switch p {
	case ReapOnClose:
		return "reap-on-close"
	default:
		return "leave-message-only"
	}
}

// ParseClosePolicy converts a configuration string to a ClosePolicy.
//
// Postcondition: Returns the policy, or an error for an unrecognised name.
func ParseClosePolicy(s string) (ClosePolicy, error) {
	switch s {
	case "leave-message-only", "":
		return LeaveMessageOnly, nil
	case "reap-on-close":
		return ReapOnClose, nil
	default:
		return LeaveMessageOnly, fmt.Errorf("unknown close policy %q", s)
	}
}

// Router receives connection lifecycle events and inbound frames for one
// room. It is the only mutator of the room's Registry.
type Router struct {
	roomID   string
	registry *Registry
	engine   Engine
	chat     ChatSink
	policy   ClosePolicy
	logger   *zap.Logger

	ownersMu sync.Mutex
	owners   map[string]string // user ID → owning conn ID
}

// NewRouter creates a Router for the given room.
//
// Precondition: registry, engine, chat and logger must be non-nil.
func NewRouter(roomID string, registry *Registry, engine Engine, chat ChatSink, policy ClosePolicy, logger *zap.Logger) *Router {
	return &Router{
		roomID:   roomID,
		registry: registry,
		engine:   engine,
		chat:     chat,
		policy:   policy,
		logger:   logger.With(zap.String("room", roomID)),
		owners:   make(map[string]string),
	}
}

// RoomID returns the ID of the room this router serves.
func (r *Router) RoomID() string { return r.roomID }

// Sessions enumerates the connections currently attached to the room.
func (r *Router) Sessions() iter.Seq[Conn] { return r.registry.Sessions() }

// OnOpen acknowledges a new connection, registers it and attaches its
// handler. A connection that is already registered keeps its handler.
//
// Precondition: conn.ID() is unique among open connections. A different Conn
// arriving under a registered ID is logged and left without a handler.
// Postcondition: conn is registered with exactly one handler attached. A
// failed ack write is logged and does not prevent registration.
func (r *Router) OnOpen(conn Conn) {
	r.logger.Debug("connection opened", zap.String("conn_id", conn.ID()))

	ack := AckFrame(SupportedVersions...)
	if err := conn.SendText(ack); err != nil {
		r.logger.Warn("sending ack",
			zap.String("conn_id", conn.ID()),
			zap.Error(&TransportError{ConnID: conn.ID(), Op: "send", Err: err}),
		)
	}

	chosen, added := r.registry.Add(conn, newSessionHandler(conn, r))
	if sh, ok := chosen.(*sessionHandler); ok && sh.conn != conn {
		r.logger.Error("connection id already in use by another connection",
			zap.String("conn_id", conn.ID()),
		)
		return
	}
	conn.AttachHandler(chosen)
	if !added {
		r.logger.Debug("connection already registered, reusing handler",
			zap.String("conn_id", conn.ID()),
		)
	}

	r.dumpSessions("after open")
}

// OnClose unregisters conn. Under ReapOnClose it also removes the players
// conn still owns; players that have since joined over another connection
// are left alone.
//
// Postcondition: conn is not registered and has no handler attached by this
// router. Closing an unknown connection is a no-op.
func (r *Router) OnClose(conn Conn) {
	_, removed := r.registry.Remove(conn)
	r.logger.Debug("connection closed",
		zap.String("conn_id", conn.ID()),
		zap.Bool("was_registered", removed),
	)
	if !removed {
		return
	}

	owned := r.releaseOwned(conn.ID())
	if r.policy == ReapOnClose {
		for _, userID := range owned {
			r.logger.Info("removing player on close",
				zap.String("user_id", userID),
				zap.String("conn_id", conn.ID()),
			)
			if err := r.engine.RemoveUserFromRoom(userID); err != nil {
				r.logger.Error("removing player on close",
					zap.String("user_id", userID),
					zap.Error(&EngineError{Op: "removeUserFromRoom", UserID: userID, Err: err}),
				)
			}
		}
	}

	r.dumpSessions("after close")
}

// OnError records a transport error. The connection stays registered; the
// transport decides whether a close follows.
func (r *Router) OnError(conn Conn, err error) {
	r.logger.Warn("connection error",
		zap.String("conn_id", conn.ID()),
		zap.Error(err),
	)
}

// Dispatch parses one inbound frame from conn and applies it.
//
// Postcondition: Returns nil for handled and for unrecognised frames; a
// *ParseError or *ValidationError for bad frames; an *EngineError when the
// room engine or chat sink fails.
func (r *Router) Dispatch(conn Conn, frame string) error {
	r.logger.Debug("frame received",
		zap.String("conn_id", conn.ID()),
		zap.String("frame", frame),
	)

	env, err := ParseFrame(frame)
	if err != nil {
		return err
	}

	switch e := env.(type) {
	case JoinRequest:
		return r.join(conn, e)
	case RoomCommand:
		return r.command(e)
	case LeaveRequest:
		return r.leave(conn, e)
	case Unknown:
		r.logger.Error("unknown message type",
			zap.String("verb", e.RawVerb),
			zap.String("conn_id", conn.ID()),
			zap.String("frame", e.Raw),
		)
		return nil
	default:
		panic(fmt.Sprintf("unhandled envelope type %T", env))
	}
}

func (r *Router) join(conn Conn, e JoinRequest) error {
	if e.UsernameDefaulted {
		r.logger.Warn("join without username, using user id",
			zap.String("user_id", e.UserID),
		)
	}
	r.logger.Info("adding player",
		zap.String("user_id", e.UserID),
		zap.String("username", e.Username),
		zap.String("conn_id", conn.ID()),
	)

	if err := r.engine.AddUserToRoom(e.UserID, e.Username); err != nil {
		return &EngineError{Op: "addUserToRoom", UserID: e.UserID, Err: err}
	}
	if prev := r.claim(e.UserID, conn.ID()); prev != "" && prev != conn.ID() {
		r.logger.Info("player moved to a new connection",
			zap.String("user_id", e.UserID),
			zap.String("from_conn_id", prev),
			zap.String("conn_id", conn.ID()),
		)
	}
	if err := r.engine.Command(e.UserID, "look"); err != nil {
		return &EngineError{Op: "command", UserID: e.UserID, Err: err}
	}
	return nil
}

func (r *Router) command(e RoomCommand) error {
	if e.IsCommand() {
		if err := r.engine.Command(e.UserID, e.CommandText()); err != nil {
			return &EngineError{Op: "command", UserID: e.UserID, Err: err}
		}
		return nil
	}

	if e.UsernameDefaulted {
		r.logger.Warn("chat message without username, using user id",
			zap.String("user_id", e.UserID),
		)
	}
	if err := r.chat.ChatEvent(e.Username, e.Content); err != nil {
		return &EngineError{Op: "chatEvent", UserID: e.UserID, Err: err}
	}
	return nil
}

func (r *Router) leave(conn Conn, e LeaveRequest) error {
	r.logger.Info("removing player",
		zap.String("user_id", e.UserID),
		zap.String("conn_id", conn.ID()),
	)
	r.release(e.UserID)
	if err := r.engine.RemoveUserFromRoom(e.UserID); err != nil {
		return &EngineError{Op: "removeUserFromRoom", UserID: e.UserID, Err: err}
	}
	return nil
}

// Serve drives one connection from open to close: it registers the link,
// feeds its frames through a single-consumer inbox and unregisters it once
// reading stops. Serve blocks until the connection is closed or ctx ends.
//
// Postcondition: The link is closed and unregistered. Returns nil on a clean
// close or cancellation, otherwise the *TransportError that ended reading.
func (r *Router) Serve(ctx context.Context, link Link, inboxSize int) error {
	sess := NewSession(link, inboxSize)
	stop := context.AfterFunc(ctx, func() { _ = link.Close() })
	defer stop()

	r.OnOpen(sess)
	go sess.inbox.Run()

	var readErr error
	for {
		frame, err := link.ReadFrame()
		if err != nil {
			readErr = err
			break
		}
		if err := sess.inbox.Post(ctx, frame); err != nil {
			readErr = err
			break
		}
	}

	clean := errors.Is(readErr, io.EOF) || ctx.Err() != nil
	var result error
	if !clean {
		result = &TransportError{ConnID: link.ID(), Op: "read", Err: readErr}
		r.OnError(sess, result)
	}

	sess.inbox.Close()
	<-sess.inbox.Done()
	r.OnClose(sess)

	if err := link.Close(); err != nil {
		r.logger.Debug("closing link", zap.String("conn_id", link.ID()), zap.Error(err))
	}
	return result
}

// claim makes connID the owner of userID and returns the previous owner.
func (r *Router) claim(userID, connID string) string {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	prev := r.owners[userID]
	r.owners[userID] = connID
	return prev
}

func (r *Router) release(userID string) {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	delete(r.owners, userID)
}

// releaseOwned drops and returns, sorted, the users owned by connID.
func (r *Router) releaseOwned(connID string) []string {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	var out []string
	for userID, owner := range r.owners {
		if owner == connID {
			out = append(out, userID)
			delete(r.owners, userID)
		}
	}
	slices.Sort(out)
	return out
}

// Owner returns the ID of the connection that owns userID.
func (r *Router) Owner(userID string) (string, bool) {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	id, ok := r.owners[userID]
	return id, ok
}

func (r *Router) dumpSessions(when string) {
	if !r.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	if r.registry.Len() == 0 {
		r.logger.Debug("no sessions known", zap.String("when", when))
		return
	}
	for c := range r.registry.Sessions() {
		_, attached := r.registry.Handler(c.ID())
		r.logger.Debug("session",
			zap.String("when", when),
			zap.String("conn_id", c.ID()),
			zap.Bool("handler", attached),
		)
	}
}

// sessionHandler is the per-connection callback installed by OnOpen. It is
// the outermost boundary for a connection's frames: failures are logged here
// and go no further.
type sessionHandler struct {
	conn   Conn
	router *Router
}

func newSessionHandler(conn Conn, router *Router) *sessionHandler {
	return &sessionHandler{conn: conn, router: router}
}

func (h *sessionHandler) OnMessage(frame string) {
	logger := h.router.logger
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic handling frame",
				zap.String("conn_id", h.conn.ID()),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()

	err := h.router.Dispatch(h.conn, frame)
	switch {
	case err == nil:
	case IsRecoverable(err):
		logger.Warn("discarding frame",
			zap.String("conn_id", h.conn.ID()),
			zap.Error(err),
		)
	default:
		logger.Error("handling frame",
			zap.String("conn_id", h.conn.ID()),
			zap.Error(err),
		)
	}
}
