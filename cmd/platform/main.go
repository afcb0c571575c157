package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/chatwire/sh-msg-platform/internal/api"
	"github.com/chatwire/sh-msg-platform/internal/blobstore"
	"github.com/chatwire/sh-msg-platform/internal/cache"
	"github.com/chatwire/sh-msg-platform/internal/config"
	"github.com/chatwire/sh-msg-platform/internal/core/ports"
	"github.com/chatwire/sh-msg-platform/internal/core/services"
	"github.com/chatwire/sh-msg-platform/internal/db"
	"github.com/chatwire/sh-msg-platform/internal/engine"
	"github.com/chatwire/sh-msg-platform/internal/health"
	"github.com/chatwire/sh-msg-platform/internal/log"
	"github.com/chatwire/sh-msg-platform/internal/redis"
	"github.com/chatwire/sh-msg-platform/internal/repositories"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Error(context.Background(), "cannot load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(log.NewContext(context.Background(), cfg.Log.Level, cfg.Log.Mode, os.Stdout))
	defer cancel()

	var pingers []health.Ping

	var catalog ports.SessionRepository
	var credsRepo ports.CredentialRepository
	if cfg.FilesystemOnly() {
		log.Warn(ctx, "no database configured: sessions and credentials are kept on the local filesystem only")
		catalog = repositories.NewFileSession(cfg.Sessions.DataDir)
		credsRepo = repositories.NewFileCredential(cfg.Sessions.DataDir)
	} else {
		storage, err := db.NewStorage(cfg.Database.URL)
		if err != nil {
			log.Error(ctx, "cannot connect to database", "err", err)
			os.Exit(1)
		}
		defer func() {
			if err := storage.Close(); err != nil {
				log.Error(ctx, "closing database", "err", err)
			}
		}()
		catalog = repositories.NewSession(storage.Pgx)
		credsRepo = repositories.NewCredential(storage.Pgx)
		pingers = append(pingers, storage.Pgx)
	}

	var cachex cache.Cache = cache.NewMemoryCache()
	if cfg.Cache.RedisUrl != "" {
		rdb, err := redis.Open(ctx, cfg.Cache.RedisUrl)
		if err != nil {
			log.Error(ctx, "cannot connect to redis, falling back to in-memory cache", "err", err)
		} else {
			cachex = cache.NewRedisCache(rdb)
			pingers = append(pingers, redis.NewWrapper(rdb))
		}
	}

	var blob ports.BlobStore = blobstore.Null{}
	if cfg.Blob.Bucket != "" {
		s3Store, err := blobstore.NewS3(ctx, blobstore.Config{
			Endpoint:  cfg.Blob.Endpoint,
			Region:    cfg.Blob.Region,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
		})
		if err != nil {
			log.Error(ctx, "cannot build blob store, media storage disabled", "err", err)
		} else {
			blob = s3Store
		}
	}

	pairing := services.NewPairingService(cachex)
	registry := services.NewSessionRegistry(catalog, credsRepo, blob,
		engine.NullFactory{}, pairing, cfg.Sessions.DataDir, cfg.Blob.URLExpiry)

	// restore every known session before accepting create requests
	if err := registry.Initialize(ctx); err != nil {
		log.Error(ctx, "session restore failed", "err", err)
	}

	mux := chi.NewRouter()
	api.NewServer(registry, health.New(pingers...)).Routes(ctx, mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info(ctx, "server started", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "starting http server", "err", err)
		}
	}()

	<-quit
	log.Info(ctx, "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutting down http server", "err", err)
	}
}
