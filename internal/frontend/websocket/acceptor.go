package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/frontend"
	"github.com/cory-johannsen/roomserver/internal/observability"
	"github.com/cory-johannsen/roomserver/internal/room"
)

const shutdownTimeout = 5 * time.Second

// Directory lists the connections registered with a room.
type Directory interface {
	RoomID() string
	Sessions() iter.Seq[room.Conn]
}

// Acceptor serves WebSocket upgrades plus health and session listings over
// HTTP. Upgraded connections run under the acceptor's base context, so Stop
// ends them all.
type Acceptor struct {
	cfg      config.WebSocketConfig
	handler  frontend.SessionHandler
	dir      Directory
	logger   *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	running  bool
	sessions sync.WaitGroup
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: handler, dir and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, handler frontend.SessionHandler, dir Directory, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		dir:     dir,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, a.handleUpgrade)
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/sessions", a.handleSessions)
	a.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *Acceptor) Handler() http.Handler {
	return a.server.Handler
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	a.sessions.Add(1)
	a.mu.Unlock()
	defer a.sessions.Done()

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		a.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := NewConn(ws, ConnOptions{
		ReadLimit:    a.cfg.ReadLimit,
		WriteTimeout: a.cfg.WriteTimeout,
		PongWait:     a.cfg.PongWait,
		PingPeriod:   a.cfg.PingPeriod(),
	})
	logger := observability.ConnLogger(a.logger, "websocket", conn.ID(), r.RemoteAddr)
	_ = frontend.RunSession(a.ctx, a.handler, conn, logger)
}

func (a *Acceptor) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type sessionsResponse struct {
	Room     string   `json:"room"`
	Count    int      `json:"count"`
	Sessions []string `json:"sessions"`
}

func (a *Acceptor) handleSessions(w http.ResponseWriter, _ *http.Request) {
	resp := sessionsResponse{Room: a.dir.RoomID(), Sessions: []string{}}
	for conn := range a.dir.Sessions() {
		resp.Sessions = append(resp.Sessions, conn.ID())
	}
	resp.Count = len(resp.Sessions)
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Stop stops accepting connections, cancels every active session and waits
// for them to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	a.sessions.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
