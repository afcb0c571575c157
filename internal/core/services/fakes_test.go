package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/repositories"
)

type fakeCredentialRepo struct {
	mu      sync.Mutex
	rows    map[string]map[string]json.RawMessage
	getErrs map[string]error
	putErr  error
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{
		rows:    map[string]map[string]json.RawMessage{},
		getErrs: map[string]error{},
	}
}

func (f *fakeCredentialRepo) Get(_ context.Context, sessionID, keyID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.getErrs[keyID]; ok {
		return nil, err
	}
	raw, ok := f.rows[sessionID][keyID]
	if !ok {
		return nil, repositories.ErrCredentialNotFound
	}
	return append(json.RawMessage{}, raw...), nil
}

func (f *fakeCredentialRepo) Put(_ context.Context, sessionID, keyID string, value json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if f.rows[sessionID] == nil {
		f.rows[sessionID] = map[string]json.RawMessage{}
	}
	f.rows[sessionID][keyID] = append(json.RawMessage{}, value...)
	return nil
}

func (f *fakeCredentialRepo) Delete(_ context.Context, sessionID, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows[sessionID], keyID)
	return nil
}

func (f *fakeCredentialRepo) DeleteAll(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, sessionID)
	return nil
}

func (f *fakeCredentialRepo) count(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[sessionID])
}

func (f *fakeCredentialRepo) seed(sessionID, keyID string, value json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[sessionID] == nil {
		f.rows[sessionID] = map[string]json.RawMessage{}
	}
	f.rows[sessionID][keyID] = value
}

type fakeSessionRepo struct {
	mu        sync.Mutex
	records   map[string]*domain.SessionRecord
	order     []string
	activeErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{records: map[string]*domain.SessionRecord{}}
}

func (f *fakeSessionRepo) Save(_ context.Context, record *domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[record.ID]; !ok {
		f.order = append(f.order, record.ID)
	}
	clone := *record
	f.records[record.ID] = &clone
	return nil
}

func (f *fakeSessionRepo) UpdateStatus(_ context.Context, id string, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return repositories.ErrSessionDoesNotExist
	}
	record.Status = status
	return nil
}

func (f *fakeSessionRepo) GetAllActiveIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	ids := make([]string, 0, len(f.order))
	for _, id := range f.order {
		if f.records[id].Status != domain.StatusDeleted {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return repositories.ErrSessionDoesNotExist
	}
	record.Status = domain.StatusDeleted
	return nil
}

func (f *fakeSessionRepo) status(id string) (domain.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return "", false
	}
	return record.Status, true
}

type fakeBlobStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	presignErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Upload(_ context.Context, sessionID, objectName string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + "/" + objectName
	f.objects[key] = append([]byte{}, data...)
	return key, nil
}

func (f *fakeBlobStore) PresignedURL(_ context.Context, sessionID, objectName string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return fmt.Sprintf("https://blobs.test/%s/%s?ttl=%d", sessionID, objectName, int(ttl.Seconds())), nil
}

func (f *fakeBlobStore) Download(_ context.Context, sessionID, objectName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[sessionID+"/"+objectName]
	if !ok {
		return nil, fmt.Errorf("object not found")
	}
	return append([]byte{}, data...), nil
}

func (f *fakeBlobStore) Delete(_ context.Context, sessionID, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, sessionID+"/"+objectName)
	return nil
}

func (f *fakeBlobStore) DeleteAll(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.objects {
		if strings.HasPrefix(key, sessionID+"/") {
			delete(f.objects, key)
		}
	}
	return nil
}

func (f *fakeBlobStore) count(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key := range f.objects {
		if strings.HasPrefix(key, sessionID+"/") {
			n++
		}
	}
	return n
}

// fakeEngine drives the handler the way a configurable wire engine would
type fakeEngine struct {
	mu        sync.Mutex
	handler   ports.EngineHandler
	connectFn func(ctx context.Context, handler ports.EngineHandler)
	logoutFn  func(ctx context.Context)
	connects  int
	logouts   int
}

func (e *fakeEngine) Connect(ctx context.Context) error {
	e.mu.Lock()
	e.connects++
	fn := e.connectFn
	e.mu.Unlock()
	if fn != nil {
		fn(ctx, e.handler)
	}
	return nil
}

func (e *fakeEngine) Logout(ctx context.Context) error {
	e.mu.Lock()
	e.logouts++
	fn := e.logoutFn
	e.mu.Unlock()
	if fn != nil {
		fn(ctx)
	}
	return nil
}

func (e *fakeEngine) setLogoutFn(fn func(ctx context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logoutFn = fn
}

func (e *fakeEngine) Disconnect() {}

func (e *fakeEngine) connectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connects
}

func (e *fakeEngine) logoutCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logouts
}

type fakeEngineFactory struct {
	mu        sync.Mutex
	connectFn func(ctx context.Context, handler ports.EngineHandler)
	engines   []*fakeEngine
}

// connectUp makes every built engine report a completed handshake
func connectUp(ctx context.Context, handler ports.EngineHandler) {
	handler.HandleConnectionUp(ctx)
}

func (f *fakeEngineFactory) New(_ string, _ ports.KeyStore, handler ports.EngineHandler) (ports.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	engine := &fakeEngine{handler: handler, connectFn: f.connectFn}
	f.engines = append(f.engines, engine)
	return engine, nil
}

func (f *fakeEngineFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}
