package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/sh-msg-platform/internal/cache"
	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/core/services"
)

type registryFixture struct {
	registry *services.SessionRegistry
	catalog  *fakeSessionRepo
	creds    *fakeCredentialRepo
	blob     *fakeBlobStore
	engines  *fakeEngineFactory
	pairing  *services.PairingService
	dataDir  string
}

func newRegistryFixture(t *testing.T, engines *fakeEngineFactory) registryFixture {
	t.Helper()
	if engines == nil {
		engines = &fakeEngineFactory{connectFn: connectUp}
	}
	fx := registryFixture{
		catalog: newFakeSessionRepo(),
		creds:   newFakeCredentialRepo(),
		blob:    newFakeBlobStore(),
		engines: engines,
		pairing: services.NewPairingService(cache.NewMemoryCache()),
		dataDir: t.TempDir(),
	}
	fx.registry = services.NewSessionRegistry(fx.catalog, fx.creds, fx.blob,
		fx.engines, fx.pairing, fx.dataDir, time.Hour)
	return fx
}

func TestRegistryCreateValidatesID(t *testing.T) {
	ctx := context.Background()

	type testConfig struct {
		name string
		id   string
		ok   bool
	}
	for _, tc := range []testConfig{
		{name: "plain id", id: "customer1", ok: true},
		{name: "dashes and underscores", id: "tenant-42_prod", ok: true},
		{name: "single character", id: "a", ok: true},
		{name: "empty", id: "", ok: false},
		{name: "spaces", id: "my session", ok: false},
		{name: "path traversal", id: "../etc", ok: false},
		{name: "slash", id: "a/b", ok: false},
		{name: "unicode", id: "sesión", ok: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fx := newRegistryFixture(t, nil)
			result := fx.registry.Create(ctx, tc.id, domain.SessionOptions{})
			assert.Equal(t, tc.ok, result.Success)
			if !tc.ok {
				assert.Nil(t, result.Data)
				assert.Empty(t, fx.registry.GetAll(ctx))
			}
		})
	}
}

func TestRegistryCreateAcceptsGeneratedIDs(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	id := uuid.NewString()
	result := fx.registry.Create(ctx, id, domain.SessionOptions{})
	require.True(t, result.Success)

	info, ok := fx.registry.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, id, info.ID)
}

func TestRegistryCreateFreshSession(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	result := fx.registry.Create(ctx, "fresh", domain.SessionOptions{
		Metadata: map[string]any{"tenant": "acme"},
	})
	require.True(t, result.Success)
	require.NotNil(t, result.Data)
	assert.Equal(t, "fresh", result.Data.ID)
	assert.Equal(t, domain.StatusConnected, result.Data.Status)
	assert.Equal(t, "acme", result.Data.Metadata["tenant"])

	// identity bootstrapped and catalog row written
	assert.Equal(t, 1, fx.creds.count("fresh"))
	status, ok := fx.catalog.status("fresh")
	require.True(t, ok)
	assert.Equal(t, domain.StatusConnected, status)
	assert.Equal(t, 1, fx.engines.created())
}

func TestRegistryCreateDuplicateKeepsSingleHandle(t *testing.T) {
	ctx := context.Background()
	// engine that never completes the handshake, the handle stays connecting
	fx := newRegistryFixture(t, &fakeEngineFactory{})

	first := fx.registry.Create(ctx, "dup", domain.SessionOptions{})
	require.True(t, first.Success)

	second := fx.registry.Create(ctx, "dup", domain.SessionOptions{
		Metadata: map[string]any{"note": "retry"},
	})
	require.True(t, second.Success)

	assert.Len(t, fx.registry.GetAll(ctx), 1)
	assert.Equal(t, 1, fx.engines.created())
	assert.Equal(t, 1, fx.engines.engines[0].connectCount())

	// the retry options were merged into the surviving handle
	info, ok := fx.registry.Get(ctx, "dup")
	require.True(t, ok)
	assert.Equal(t, "retry", info.Metadata["note"])
}

func TestRegistryCreateAlreadyConnected(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	require.True(t, fx.registry.Create(ctx, "live", domain.SessionOptions{}).Success)

	result := fx.registry.Create(ctx, "live", domain.SessionOptions{})
	assert.False(t, result.Success)
	require.NotNil(t, result.Data)
	assert.Equal(t, domain.StatusConnected, result.Data.Status)
	assert.Len(t, fx.registry.GetAll(ctx), 1)
}

func TestRegistryCreateRejectsBadWebhookOnExisting(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, &fakeEngineFactory{})

	require.True(t, fx.registry.Create(ctx, "hooked", domain.SessionOptions{}).Success)

	result := fx.registry.Create(ctx, "hooked", domain.SessionOptions{
		Webhooks: []domain.Webhook{{URL: "not-a-url", Events: []string{"message"}}},
	})
	assert.False(t, result.Success)

	info, ok := fx.registry.Get(ctx, "hooked")
	require.True(t, ok)
	assert.Empty(t, info.Webhooks)
}

func TestRegistryGetAllKeepsRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		require.True(t, fx.registry.Create(ctx, id, domain.SessionOptions{}).Success)
	}
	infos := fx.registry.GetAll(ctx)
	require.Len(t, infos, 3)
	assert.Equal(t, "charlie", infos[0].ID)
	assert.Equal(t, "alpha", infos[1].ID)
	assert.Equal(t, "bravo", infos[2].ID)
}

func TestRegistryDeleteUnknownSession(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	result := fx.registry.Delete(ctx, "ghost")
	assert.False(t, result.Success)
}

func TestRegistryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	require.True(t, fx.registry.Create(ctx, "doomed", domain.SessionOptions{}).Success)
	handle, ok := fx.registry.Handle("doomed")
	require.True(t, ok)

	// pile up credential rows and media objects to watch the cascade
	require.NoError(t, handle.Keys().Set(ctx, []domain.CredentialUpdate{
		{Kind: domain.KindPreKey, ID: "1", Value: json.RawMessage(`{"private":"cHJpdg=="}`)},
		{Kind: domain.KindSession, ID: "peer.1", Value: json.RawMessage(`{"state":1}`)},
	}))
	require.True(t, handle.Media().UploadMedia(ctx, "msg-1", []byte("jpeg bytes"), "image/jpeg").Success)
	require.Equal(t, 3, fx.creds.count("doomed"))
	require.Equal(t, 1, fx.blob.count("doomed"))

	result := fx.registry.Delete(ctx, "doomed")
	require.True(t, result.Success)

	assert.Empty(t, fx.registry.GetAll(ctx))
	assert.Equal(t, 0, fx.creds.count("doomed"))
	assert.Equal(t, 0, fx.blob.count("doomed"))
	assert.Equal(t, 1, fx.engines.engines[0].logoutCount())

	status, ok := fx.catalog.status("doomed")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDeleted, status)

	// the id is free again
	assert.True(t, fx.registry.Create(ctx, "doomed", domain.SessionOptions{}).Success)
}

func TestRegistryInitializeUnionsCatalogAndDataDir(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	require.NoError(t, fx.catalog.Save(ctx, domain.NewSessionRecord("alpha", domain.SessionOptions{})))
	require.NoError(t, fx.catalog.Save(ctx, domain.NewSessionRecord("bravo", domain.SessionOptions{})))
	require.NoError(t, os.MkdirAll(filepath.Join(fx.dataDir, "bravo"), 0o700))
	require.NoError(t, os.MkdirAll(filepath.Join(fx.dataDir, "charlie"), 0o700))
	// junk the discovery must skip
	require.NoError(t, os.MkdirAll(filepath.Join(fx.dataDir, "not a session"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(fx.dataDir, "stray.json"), []byte("{}"), 0o600))

	require.NoError(t, fx.registry.Initialize(ctx))

	infos := fx.registry.GetAll(ctx)
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].ID)
	assert.Equal(t, "bravo", infos[1].ID)
	assert.Equal(t, "charlie", infos[2].ID)
	for _, info := range infos {
		assert.Equal(t, domain.StatusConnected, info.Status)
	}
}

func TestRegistryInitializeSurvivesCatalogFailure(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)
	fx.catalog.activeErr = errors.New("connection refused")

	require.NoError(t, os.MkdirAll(filepath.Join(fx.dataDir, "survivor"), 0o700))

	require.NoError(t, fx.registry.Initialize(ctx))

	infos := fx.registry.GetAll(ctx)
	require.Len(t, infos, 1)
	assert.Equal(t, "survivor", infos[0].ID)
}

func TestRegistryInitializeIsolatesBrokenSessions(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	require.NoError(t, fx.catalog.Save(ctx, domain.NewSessionRecord("broken", domain.SessionOptions{})))
	require.NoError(t, fx.catalog.Save(ctx, domain.NewSessionRecord("healthy", domain.SessionOptions{})))
	fx.creds.seed("broken", "creds", json.RawMessage(`{not json`))

	require.NoError(t, fx.registry.Initialize(ctx))

	infos := fx.registry.GetAll(ctx)
	require.Len(t, infos, 1)
	assert.Equal(t, "healthy", infos[0].ID)
}

func TestRegistryStaysResponsiveDuringSlowConnect(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	// only the first handshake hangs; later sessions connect instantly
	fx := newRegistryFixture(t, &fakeEngineFactory{
		connectFn: func(_ context.Context, _ ports.EngineHandler) {
			blocked := false
			once.Do(func() { blocked = true })
			if blocked {
				close(started)
				<-release
			}
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fx.registry.Create(ctx, "stuck", domain.SessionOptions{})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = fx.registry.Get(ctx, "stuck")
		_ = fx.registry.GetAll(ctx)
		assert.True(t, fx.registry.Create(ctx, "bystander", domain.SessionOptions{}).Success)
		assert.True(t, fx.registry.Delete(ctx, "bystander").Success)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registry operations blocked behind a hung handshake")
	}

	close(release)
	wg.Wait()
}

func TestRegistryStaysResponsiveDuringSlowLogout(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	require.True(t, fx.registry.Create(ctx, "leaving", domain.SessionOptions{}).Success)
	started := make(chan struct{})
	release := make(chan struct{})
	fx.engines.engines[0].setLogoutFn(func(_ context.Context) {
		close(started)
		<-release
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.True(t, fx.registry.Delete(ctx, "leaving").Success)
	}()
	<-started

	done := make(chan struct{})
	go func() {
		defer close(done)
		// the dying handle is still visible while the cascade runs
		info, ok := fx.registry.Get(ctx, "leaving")
		assert.True(t, ok)
		assert.Equal(t, domain.StatusLoggedOut, info.Status)
		assert.True(t, fx.registry.Create(ctx, "bystander", domain.SessionOptions{}).Success)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registry operations blocked behind a slow logout")
	}

	close(release)
	wg.Wait()
	_, ok := fx.registry.Get(ctx, "leaving")
	assert.False(t, ok)
}

func TestRegistryConcurrentCreateSameID(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, nil)

	var wg sync.WaitGroup
	successes := make([]bool, 8)
	for i := 0; i < len(successes); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			successes[i] = fx.registry.Create(ctx, "contended", domain.SessionOptions{}).Success
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range successes {
		if ok {
			succeeded++
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	// whatever the interleaving, exactly one handle and one identity exist
	assert.Len(t, fx.registry.GetAll(ctx), 1)
	assert.Equal(t, 1, fx.engines.created())
	assert.Equal(t, 1, fx.creds.count("contended"))
}

func TestRegistryQR(t *testing.T) {
	ctx := context.Background()
	fx := newRegistryFixture(t, &fakeEngineFactory{})

	_, err := fx.registry.QR(ctx, "nobody")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)

	require.True(t, fx.registry.Create(ctx, "pairing", domain.SessionOptions{}).Success)

	_, err = fx.registry.QR(ctx, "pairing")
	assert.ErrorIs(t, err, services.ErrPairingCodeNotFound)

	handle, ok := fx.registry.Handle("pairing")
	require.True(t, ok)
	handle.HandlePairingCode(ctx, "2@AbCdEf==")

	code, err := fx.registry.QR(ctx, "pairing")
	require.NoError(t, err)
	assert.Equal(t, "2@AbCdEf==", code)
}
