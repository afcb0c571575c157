package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/log"
	"github.com/chatwire/sh-msg-platform/internal/repositories"
)

// ErrSessionLoggedOut the handle was logged out and cannot reconnect
var ErrSessionLoggedOut = errors.New("session is logged out")

// SessionHandle owns one session: its record, its connection state machine
// and its wiring to the credential and media stores and the protocol engine.
// All state transitions go through the handle mutex; the handle also
// implements ports.EngineHandler, so engine events serialize with explicit
// calls.
type SessionHandle struct {
	id string

	mu     sync.Mutex
	record *domain.SessionRecord
	engine ports.Engine

	keys    *CredentialStore
	media   *MediaStore
	catalog ports.SessionRepository
	pairing *PairingService
	engines ports.EngineFactory
}

// NewSessionHandle wires a handle around an existing record
func NewSessionHandle(record *domain.SessionRecord, keys *CredentialStore, media *MediaStore,
	catalog ports.SessionRepository, pairing *PairingService, engines ports.EngineFactory,
) *SessionHandle {
	return &SessionHandle{
		id:      record.ID,
		record:  record,
		keys:    keys,
		media:   media,
		catalog: catalog,
		pairing: pairing,
		engines: engines,
	}
}

// ID returns the session id
func (h *SessionHandle) ID() string {
	return h.id
}

// Keys returns the session's credential store
func (h *SessionHandle) Keys() ports.KeyStore {
	return h.keys
}

// Media returns the session's media store
func (h *SessionHandle) Media() *MediaStore {
	return h.media
}

// Connect starts the underlying protocol connection. A handle that is
// already connecting or connected must not start a second attempt, so the
// call is a guarded no-op in those states.
func (h *SessionHandle) Connect(ctx context.Context) error {
	h.mu.Lock()
	switch h.record.Status {
	case domain.StatusConnecting, domain.StatusConnected:
		h.mu.Unlock()
		log.Debug(ctx, "connect skipped, session already connecting or connected", "session", h.id)
		return nil
	case domain.StatusLoggedOut:
		h.mu.Unlock()
		return ErrSessionLoggedOut
	}
	if h.engine == nil {
		engine, err := h.engines.New(h.id, h.keys, h)
		if err != nil {
			h.mu.Unlock()
			return fmt.Errorf("building protocol engine for session %s: %w", h.id, err)
		}
		h.engine = engine
	}
	h.record.Status = domain.StatusConnecting
	engine := h.engine
	h.mu.Unlock()

	h.persistStatus(ctx, domain.StatusConnecting)
	if err := engine.Connect(ctx); err != nil {
		h.HandleConnectionDown(ctx, err)
		return fmt.Errorf("connecting session %s: %w", h.id, err)
	}
	return nil
}

// Logout tears down the live connection and cascades the deletion of the
// session's credentials and media. Cleanup failures are logged and do not
// undo the logout; the handle ends up logged out regardless.
func (h *SessionHandle) Logout(ctx context.Context) error {
	h.mu.Lock()
	if h.record.Status == domain.StatusLoggedOut {
		h.mu.Unlock()
		return nil
	}
	h.record.Status = domain.StatusLoggedOut
	engine := h.engine
	h.engine = nil
	h.mu.Unlock()

	// the engine drains pending credential writes before Logout returns,
	// so the store wipe below cannot race an in-flight set
	if engine != nil {
		if err := engine.Logout(ctx); err != nil {
			log.Warn(ctx, "engine logout reported an error", "session", h.id, "err", err)
		}
		engine.Disconnect()
	}

	if err := h.keys.ClearAll(ctx); err != nil {
		log.Error(ctx, "clearing session credentials", "session", h.id, "err", err)
	}
	h.media.DeleteAllMedia(ctx)
	if h.pairing != nil {
		h.pairing.Clear(ctx, h.id)
	}
	return nil
}

// UpdateConfig merges the supplied metadata and webhook subscriptions into
// the session record and persists the merged config. Connection state is
// untouched.
func (h *SessionHandle) UpdateConfig(ctx context.Context, opts domain.SessionOptions) error {
	for _, wh := range opts.Webhooks {
		u, err := url.Parse(wh.URL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("webhook url %q is not an absolute url", wh.URL)
		}
	}

	h.mu.Lock()
	h.record.Merge(opts)
	record := *h.record
	h.mu.Unlock()

	if err := h.catalog.Save(ctx, &record); err != nil {
		return fmt.Errorf("persisting config of session %s: %w", h.id, err)
	}
	return nil
}

// GetInfo returns an immutable snapshot of the session, safe to expose
// across the registry boundary
func (h *SessionHandle) GetInfo() domain.SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.Info()
}

// HandleConnectionUp transitions the handle to connected
func (h *SessionHandle) HandleConnectionUp(ctx context.Context) {
	h.mu.Lock()
	if h.record.Status == domain.StatusLoggedOut {
		h.mu.Unlock()
		return
	}
	h.record.Status = domain.StatusConnected
	h.mu.Unlock()

	h.persistStatus(ctx, domain.StatusConnected)
	if h.pairing != nil {
		h.pairing.Clear(ctx, h.id)
	}
	log.Info(ctx, "session connected", "session", h.id)
}

// HandleConnectionDown transitions the handle to disconnected unless it was
// explicitly logged out
func (h *SessionHandle) HandleConnectionDown(ctx context.Context, reason error) {
	h.mu.Lock()
	if h.record.Status == domain.StatusLoggedOut {
		h.mu.Unlock()
		return
	}
	h.record.Status = domain.StatusDisconnected
	h.mu.Unlock()

	h.persistStatus(ctx, domain.StatusDisconnected)
	log.Warn(ctx, "session disconnected", "session", h.id, "reason", reason)
}

// HandleCredentialsUpdated persists the engine's current identity snapshot
func (h *SessionHandle) HandleCredentialsUpdated(ctx context.Context) {
	if err := h.keys.SaveCreds(ctx); err != nil {
		log.Error(ctx, "saving updated credentials", "session", h.id, "err", err)
	}
}

// HandlePairingCode stores the latest pairing QR payload for retrieval
// through the registry
func (h *SessionHandle) HandlePairingCode(ctx context.Context, code string) {
	if h.pairing == nil {
		return
	}
	if err := h.pairing.Store(ctx, h.id, code); err != nil {
		log.Warn(ctx, "storing pairing code", "session", h.id, "err", err)
	}
}

// persistRecord saves the full session record to the catalog
func (h *SessionHandle) persistRecord(ctx context.Context) error {
	h.mu.Lock()
	record := *h.record
	h.mu.Unlock()
	return h.catalog.Save(ctx, &record)
}

func (h *SessionHandle) persistStatus(ctx context.Context, status domain.Status) {
	err := h.catalog.UpdateStatus(ctx, h.id, status)
	if err != nil && !errors.Is(err, repositories.ErrSessionDoesNotExist) {
		log.Warn(ctx, "persisting session status", "session", h.id, "status", status, "err", err)
	}
}
