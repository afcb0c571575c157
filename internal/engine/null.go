package engine

import (
	"context"
	"errors"

	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/log"
)

// ErrNoEngine is reported as the disconnect reason of null engine sessions
var ErrNoEngine = errors.New("no protocol engine linked")

// NullFactory builds engines that never connect. It keeps the platform
// runnable when no concrete wire protocol engine is linked into the binary:
// sessions can be created, configured and deleted, they just stay offline.
type NullFactory struct{}

// New returns a null engine bound to the handler
func (NullFactory) New(sessionID string, _ ports.KeyStore, handler ports.EngineHandler) (ports.Engine, error) {
	return &nullEngine{sessionID: sessionID, handler: handler}, nil
}

type nullEngine struct {
	sessionID string
	handler   ports.EngineHandler
}

func (e *nullEngine) Connect(ctx context.Context) error {
	log.Warn(ctx, "no protocol engine linked, session stays offline", "session", e.sessionID)
	e.handler.HandleConnectionDown(ctx, ErrNoEngine)
	return nil
}

func (e *nullEngine) Logout(_ context.Context) error {
	return nil
}

func (e *nullEngine) Disconnect() {}
