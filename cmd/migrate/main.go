package main

import (
	"context"
	"os"

	_ "github.com/lib/pq"

	"github.com/chatwire/sh-msg-platform/internal/config"
	"github.com/chatwire/sh-msg-platform/internal/db/schema"
	"github.com/chatwire/sh-msg-platform/internal/log"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		log.Error(ctx, "cannot load config", "err", err)
		os.Exit(1)
	}

	log.Config(cfg.Log.Level, cfg.Log.Mode, os.Stdout)

	if cfg.Database.URL == "" {
		log.Info(ctx, "no database configured, nothing to migrate")
		return
	}
	log.Debug(ctx, "database", "url", cfg.Database.URL)

	if err := schema.Migrate(cfg.Database.URL); err != nil {
		log.Error(ctx, "error migrating database", "err", err)
		return
	}

	log.Info(ctx, "migration done!")
}
