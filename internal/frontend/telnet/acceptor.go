package telnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/frontend"
	"github.com/cory-johannsen/roomserver/internal/observability"
	"github.com/cory-johannsen/roomserver/internal/room"
)

// Acceptor serves the room protocol over raw TCP, one frame per line. Every
// session runs under the acceptor's base context, so Stop ends them all.
type Acceptor struct {
	cfg     config.TelnetConfig
	handler frontend.SessionHandler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	running  bool
	sessions sync.WaitGroup
}

// NewAcceptor creates a telnet acceptor.
//
// Precondition: handler and logger must be non-nil.
func NewAcceptor(cfg config.TelnetConfig, handler frontend.SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ListenAndServe binds the configured address and accepts connections until
// Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen error.
func (a *Acceptor) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		listener.Close()
		return nil
	}
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("telnet acceptor listening", zap.String("addr", listener.Addr().String()))

	for {
		raw, err := listener.Accept()
		if err != nil {
			if a.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.logger.Warn("accepting connection", zap.Error(err))
			continue
		}
		if !a.track() {
			raw.Close()
			return nil
		}
		go a.serve(raw)
	}
}

// track registers a session unless the acceptor is stopping.
func (a *Acceptor) track() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return false
	}
	a.sessions.Add(1)
	return true
}

func (a *Acceptor) serve(raw net.Conn) {
	defer a.sessions.Done()

	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	defer conn.Close()
	logger := observability.ConnLogger(a.logger, "telnet", conn.ID(), raw.RemoteAddr().String())

	if err := conn.Negotiate(); err != nil {
		logger.Warn("telnet negotiation failed",
			zap.Error(&room.TransportError{ConnID: conn.ID(), Op: "negotiate", Err: err}),
		)
		return
	}
	_ = frontend.RunSession(a.ctx, a.handler, conn, logger)
}

// Stop closes the listener, cancels every session and waits for them.
// It is safe to call more than once.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	a.cancel()
	wasRunning := a.running
	a.running = false
	if a.listener != nil {
		a.listener.Close()
	}
	a.mu.Unlock()

	a.sessions.Wait()
	if wasRunning {
		a.logger.Info("telnet acceptor stopped")
	}
}

// Addr returns the listening address, or "" before ListenAndServe binds.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// IsRunning reports whether the acceptor is accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
