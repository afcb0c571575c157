package services

import (
	"context"
	"errors"
	"time"

	"github.com/chatwire/sh-msg-platform/internal/cache"
	"github.com/chatwire/sh-msg-platform/internal/log"
)

// DefaultPairingCodeTTL is how long a pairing QR payload stays retrievable.
// Codes rotate quickly on the wire, so there is no point keeping stale ones.
const DefaultPairingCodeTTL = 5 * time.Minute

// ErrPairingCodeNotFound is returned when no current pairing code exists for
// a session
var ErrPairingCodeNotFound = errors.New("pairing code not found")

// PairingService keeps the latest pairing QR payload per session in the
// cache so the API layer can serve it while the handshake is pending.
type PairingService struct {
	store cache.Cache
}

type pairingPayload struct {
	Code string `json:"code"`
}

// NewPairingService creates a new PairingService instance
func NewPairingService(store cache.Cache) *PairingService {
	return &PairingService{store: store}
}

// Store records the latest pairing code of a session
func (s *PairingService) Store(ctx context.Context, sessionID, code string) error {
	if err := s.store.Set(ctx, s.key(sessionID), pairingPayload{Code: code}, DefaultPairingCodeTTL); err != nil {
		log.Error(ctx, "error storing pairing code", "session", sessionID, "err", err)
		return err
	}
	return nil
}

// Code retrieves the current pairing code. Not finding one is an error: the
// caller should retry once the engine emits a fresh code.
func (s *PairingService) Code(ctx context.Context, sessionID string) (string, error) {
	var raw pairingPayload
	if found := s.store.Get(ctx, s.key(sessionID), &raw); !found {
		return "", ErrPairingCodeNotFound
	}
	return raw.Code, nil
}

// Clear drops the stored pairing code of a session
func (s *PairingService) Clear(ctx context.Context, sessionID string) {
	if err := s.store.Delete(ctx, s.key(sessionID)); err != nil {
		log.Warn(ctx, "error clearing pairing code", "session", sessionID, "err", err)
	}
}

func (s *PairingService) key(sessionID string) string {
	return "msg-platform:pairing-code:" + sessionID
}
