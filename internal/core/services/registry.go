package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/log"
)

// ErrSessionNotFound no handle is registered under the requested id
var ErrSessionNotFound = errors.New("session not found")

var _ ports.SessionService = (*SessionRegistry)(nil)

// SessionRegistry owns the set of live session handles. It is constructed
// once per process and injected wherever sessions are needed. The mutex only
// guards the id→handle mapping and the in-flight creation markers: engine
// calls always run outside of it, so one hung handshake cannot freeze
// lookups or operations on other sessions. Per-id single-writer discipline
// comes from the pending set plus each handle's own mutex.
type SessionRegistry struct {
	mu      sync.Mutex
	handles map[string]*SessionHandle
	pending map[string]struct{}
	order   []string

	catalog   ports.SessionRepository
	creds     ports.CredentialRepository
	blob      ports.BlobStore
	engines   ports.EngineFactory
	pairing   *PairingService
	dataDir   string
	urlExpiry time.Duration
}

// NewSessionRegistry builds a registry over the given stores. catalog may be
// backed by the filesystem when no durable catalog is configured.
func NewSessionRegistry(catalog ports.SessionRepository, creds ports.CredentialRepository,
	blob ports.BlobStore, engines ports.EngineFactory, pairing *PairingService,
	dataDir string, urlExpiry time.Duration,
) *SessionRegistry {
	return &SessionRegistry{
		handles:   make(map[string]*SessionHandle),
		pending:   make(map[string]struct{}),
		catalog:   catalog,
		creds:     creds,
		blob:      blob,
		engines:   engines,
		pairing:   pairing,
		dataDir:   dataDir,
		urlExpiry: urlExpiry,
	}
}

// Initialize discovers every known session id from the catalog and from the
// legacy directories under the data dir, restores a handle for each and asks
// it to connect. Failures are isolated: a broken catalog does not stop
// filesystem discovery and one session failing to restore does not stop the
// others. Callers must let Initialize finish before accepting external
// create requests.
func (r *SessionRegistry) Initialize(ctx context.Context) error {
	seen := map[string]bool{}
	ids := make([]string, 0)

	catalogIDs, err := r.catalog.GetAllActiveIDs(ctx)
	if err != nil {
		log.Error(ctx, "querying session catalog, falling back to filesystem discovery", "err", err)
	} else {
		for _, id := range catalogIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	for _, id := range r.discoverLocalSessions(ctx) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	restored := 0
	for _, id := range ids {
		handle, err := r.buildHandle(ctx, id, domain.SessionOptions{})
		if err != nil {
			log.Error(ctx, "restoring session", "session", id, "err", err)
			continue
		}
		r.mu.Lock()
		if _, exists := r.handles[id]; exists {
			r.mu.Unlock()
			continue
		}
		r.register(handle)
		r.mu.Unlock()
		restored++
		if err := handle.Connect(ctx); err != nil {
			log.Error(ctx, "reconnecting restored session", "session", id, "err", err)
		}
	}
	log.Info(ctx, "session restore finished", "discovered", len(ids), "restored", restored)
	return nil
}

// Create registers a new session and connects it. For an id that already has
// a handle the supplied options are merged into its config; an already
// connected handle makes the call an idempotent no-op reported as a failure
// result carrying the current snapshot, anything else triggers a reconnect.
func (r *SessionRegistry) Create(ctx context.Context, id string, opts domain.SessionOptions) domain.Result {
	if !domain.ValidSessionID(id) {
		return domain.FailResult("invalid session id: only letters, digits, '-' and '_' are allowed", nil)
	}

	r.mu.Lock()
	if handle, ok := r.handles[id]; ok {
		r.mu.Unlock()
		return r.reconnect(ctx, handle, opts)
	}
	if _, busy := r.pending[id]; busy {
		r.mu.Unlock()
		return domain.FailResult("session creation already in progress", nil)
	}
	r.pending[id] = struct{}{}
	r.mu.Unlock()

	handle, err := r.buildHandle(ctx, id, opts)
	r.mu.Lock()
	delete(r.pending, id)
	if err == nil {
		r.register(handle)
	}
	r.mu.Unlock()
	if err != nil {
		log.Error(ctx, "creating session", "session", id, "err", err)
		return domain.FailResult("cannot create session", nil)
	}

	if err := handle.persistRecord(ctx); err != nil {
		// degraded mode: the session lives in memory and can pair, it is
		// just not restorable until the catalog recovers
		log.Error(ctx, "persisting new session", "session", id, "err", err)
	}
	if err := handle.Connect(ctx); err != nil {
		log.Error(ctx, "connecting new session", "session", id, "err", err)
	}
	info := handle.GetInfo()
	return domain.OkResult("session created", &info)
}

// reconnect serves Create for an id that already has a live handle. Runs
// without the registry mutex; the handle's own mutex serializes it.
func (r *SessionRegistry) reconnect(ctx context.Context, handle *SessionHandle, opts domain.SessionOptions) domain.Result {
	info := handle.GetInfo()
	if info.Status == domain.StatusLoggedOut {
		return domain.FailResult("session is being removed", &info)
	}
	if err := handle.UpdateConfig(ctx, opts); err != nil {
		return domain.FailResult(err.Error(), nil)
	}
	info = handle.GetInfo()
	if info.Status == domain.StatusConnected {
		return domain.FailResult("session already connected", &info)
	}
	if err := handle.Connect(ctx); err != nil {
		log.Error(ctx, "reconnecting session", "session", handle.ID(), "err", err)
		info = handle.GetInfo()
		return domain.FailResult("session reconnect failed", &info)
	}
	info = handle.GetInfo()
	return domain.OkResult("session reconnecting", &info)
}

// Get returns the info snapshot of one session
func (r *SessionRegistry) Get(_ context.Context, id string) (domain.SessionInfo, bool) {
	handle, ok := r.Handle(id)
	if !ok {
		return domain.SessionInfo{}, false
	}
	return handle.GetInfo(), true
}

// Handle returns the live handle registered under id. Pure lookup, no side
// effects.
func (r *SessionRegistry) Handle(id string) (*SessionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.handles[id]
	return handle, ok
}

// GetAll returns a snapshot of every registered session in first
// registration order
func (r *SessionRegistry) GetAll(_ context.Context) []domain.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]domain.SessionInfo, 0, len(r.order))
	for _, id := range r.order {
		if handle, ok := r.handles[id]; ok {
			infos = append(infos, handle.GetInfo())
		}
	}
	return infos
}

// Delete logs the session out, cascading credential and media cleanup, and
// removes it from the registry. Once logout has been attempted the handle is
// removed unconditionally: cleanup failures may leave orphaned rows behind,
// surfaced through logs only. The handle stays registered while the cascade
// runs, so a concurrent Create for the same id resolves against the logged
// out handle instead of racing the wipe.
func (r *SessionRegistry) Delete(ctx context.Context, id string) domain.Result {
	r.mu.Lock()
	handle, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return domain.FailResult("session not found", nil)
	}

	if err := handle.Logout(ctx); err != nil {
		log.Error(ctx, "session teardown reported errors", "session", id, "err", err)
	}
	if err := r.catalog.Delete(ctx, id); err != nil {
		log.Error(ctx, "removing session from catalog", "session", id, "err", err)
	}

	r.mu.Lock()
	delete(r.handles, id)
	for i, registered := range r.order {
		if registered == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return domain.OkResult("session deleted", nil)
}

// QR returns the latest pairing code of a session
func (r *SessionRegistry) QR(ctx context.Context, id string) (string, error) {
	if _, ok := r.Handle(id); !ok {
		return "", ErrSessionNotFound
	}
	if r.pairing == nil {
		return "", ErrPairingCodeNotFound
	}
	return r.pairing.Code(ctx, id)
}

func (r *SessionRegistry) buildHandle(ctx context.Context, id string, opts domain.SessionOptions) (*SessionHandle, error) {
	keys, err := NewCredentialStore(ctx, id, r.creds)
	if err != nil {
		return nil, err
	}
	media := NewMediaStore(id, r.blob, r.urlExpiry)
	record := domain.NewSessionRecord(id, opts)
	return NewSessionHandle(record, keys, media, r.catalog, r.pairing, r.engines), nil
}

// register must be called with the registry mutex held
func (r *SessionRegistry) register(handle *SessionHandle) {
	r.handles[handle.ID()] = handle
	r.order = append(r.order, handle.ID())
}

// discoverLocalSessions lists the legacy per-session directories under the
// data dir, creating the root when it does not exist yet
func (r *SessionRegistry) discoverLocalSessions(ctx context.Context) []string {
	if err := os.MkdirAll(r.dataDir, 0o700); err != nil {
		log.Error(ctx, "creating sessions data dir", "dir", r.dataDir, "err", err)
		return nil
	}
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		log.Error(ctx, "listing sessions data dir", "dir", r.dataDir, "err", err)
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && domain.ValidSessionID(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}
	return ids
}
