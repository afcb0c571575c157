package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/log"
	"github.com/chatwire/sh-msg-platform/internal/repositories"
)

// CredentialStore implements the ports.KeyStore contract the protocol engine
// consumes, backed by a CredentialRepository. Construction loads the
// singleton identity entry and bootstraps a fresh one when it is absent;
// once the entry exists it is loaded verbatim and never regenerated.
type CredentialStore struct {
	sessionID string
	repo      ports.CredentialRepository

	mu    sync.RWMutex
	creds *domain.Credentials
}

// NewCredentialStore builds the credential adapter for one session
func NewCredentialStore(ctx context.Context, sessionID string, repo ports.CredentialRepository) (*CredentialStore, error) {
	s := &CredentialStore{
		sessionID: sessionID,
		repo:      repo,
	}

	raw, err := repo.Get(ctx, sessionID, domain.KindCreds.StorageKeyID(""))
	if err == nil {
		creds, err := domain.UnmarshalCredentials(raw)
		if err != nil {
			return nil, fmt.Errorf("loading credentials of session %s: %w", sessionID, err)
		}
		s.creds = creds
		return s, nil
	}
	if !errors.Is(err, repositories.ErrCredentialNotFound) {
		// a connectivity failure reads as absent, but a durable identity
		// may still exist behind it. The fresh identity stays in memory
		// only, so the stored entry is never overwritten implicitly; the
		// engine persists through SaveCreds once it has a reason to.
		log.Warn(ctx, "credential read failed, using an unpersisted fresh identity",
			"session", sessionID, "err", err)
		creds, err := domain.NewCredentials()
		if err != nil {
			return nil, fmt.Errorf("bootstrapping identity of session %s: %w", sessionID, err)
		}
		s.creds = creds
		return s, nil
	}

	creds, err := domain.NewCredentials()
	if err != nil {
		return nil, fmt.Errorf("bootstrapping identity of session %s: %w", sessionID, err)
	}
	s.creds = creds
	if err := s.SaveCreds(ctx); err != nil {
		log.Error(ctx, "persisting bootstrapped identity",
			"session", sessionID, "err", err)
	}
	return s, nil
}

// Get resolves the requested ids of one category. Per-id failures are
// tolerated: the id is simply absent from the result.
func (s *CredentialStore) Get(ctx context.Context, kind domain.CredentialKind, ids []string) (map[string]any, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown credential category %q", kind)
	}
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		raw, err := s.repo.Get(ctx, s.sessionID, kind.StorageKeyID(id))
		if err != nil {
			if !errors.Is(err, repositories.ErrCredentialNotFound) {
				log.Warn(ctx, "credential read failed",
					"session", s.sessionID, "kind", kind, "id", id, "err", err)
			}
			continue
		}
		value, err := domain.DecodeCredentialValue(kind, raw)
		if err != nil {
			log.Warn(ctx, "stored credential value is malformed",
				"session", s.sessionID, "kind", kind, "id", id, "err", err)
			continue
		}
		out[id] = value
	}
	return out, nil
}

// Set applies a batch of credential updates. All writes run concurrently;
// individual failures are logged and folded into the aggregate error without
// rolling back siblings.
func (s *CredentialStore) Set(ctx context.Context, updates []domain.CredentialUpdate) error {
	type outcome struct {
		keyID string
		err   error
	}
	results := make([]outcome, len(updates))

	var wg sync.WaitGroup
	for i, upd := range updates {
		if !upd.Kind.Valid() {
			results[i] = outcome{
				keyID: string(upd.Kind),
				err:   fmt.Errorf("unknown credential category %q", upd.Kind),
			}
			continue
		}
		wg.Add(1)
		go func(i int, upd domain.CredentialUpdate) {
			defer wg.Done()
			keyID := upd.Kind.StorageKeyID(upd.ID)
			var err error
			if isTombstone(upd.Value) {
				err = s.repo.Delete(ctx, s.sessionID, keyID)
			} else {
				err = s.repo.Put(ctx, s.sessionID, keyID, upd.Value)
			}
			results[i] = outcome{keyID: keyID, err: err}
		}(i, upd)
	}
	wg.Wait()

	var errs []error
	for _, res := range results {
		if res.err != nil {
			log.Error(ctx, "credential write failed",
				"session", s.sessionID, "key", res.keyID, "err", res.err)
			errs = append(errs, fmt.Errorf("%s: %w", res.keyID, res.err))
		}
	}
	return errors.Join(errs...)
}

// SaveCreds persists the current identity snapshot under the singleton entry
func (s *CredentialStore) SaveCreds(ctx context.Context) error {
	s.mu.RLock()
	raw, err := domain.MarshalCredentials(s.creds)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding credentials of session %s: %w", s.sessionID, err)
	}
	return s.repo.Put(ctx, s.sessionID, domain.KindCreds.StorageKeyID(""), raw)
}

// ClearAll removes every credential row of the session
func (s *CredentialStore) ClearAll(ctx context.Context) error {
	return s.repo.DeleteAll(ctx, s.sessionID)
}

// Credentials exposes the in-memory identity. The protocol engine mutates it
// during key exchange and signals persistence through SaveCreds.
func (s *CredentialStore) Credentials() *domain.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// isTombstone tells whether a value means "delete this entry"
func isTombstone(value []byte) bool {
	return len(value) == 0 || string(value) == "null"
}
