// Package frontend holds what the room server's transports share: the
// session handler they dispatch to and the per-connection session runner.
package frontend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/room"
)

// SessionHandler runs the frame loop for a single client.
type SessionHandler interface {
	HandleSession(ctx context.Context, link room.Link) error
}

// RunSession hands link to h and blocks until the session ends. Cancelling
// ctx, normally the acceptor's base context, ends the session.
//
// Precondition: logger should already carry the connection's fields (see
// observability.ConnLogger).
// Postcondition: Returns the error HandleSession returned.
func RunSession(ctx context.Context, h SessionHandler, link room.Link, logger *zap.Logger) error {
	start := time.Now()
	logger.Info("client connected")

	err := h.HandleSession(ctx, link)
	if err != nil {
		logger.Debug("session ended", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return err
	}
	logger.Info("session ended cleanly", zap.Duration("duration", time.Since(start)))
	return nil
}
