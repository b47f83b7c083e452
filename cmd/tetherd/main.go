// Command tetherd runs the Tether memory daemon: the identity-resolving,
// tri-store memory pipeline behind an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/meridian-labs/tether/internal/config"
	"github.com/meridian-labs/tether/internal/embedding"
	"github.com/meridian-labs/tether/internal/engine"
	"github.com/meridian-labs/tether/internal/identity"
	"github.com/meridian-labs/tether/internal/observability"
	"github.com/meridian-labs/tether/internal/server"
	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/internal/storage/chromem"
	"github.com/meridian-labs/tether/internal/storage/postgres"
	"github.com/meridian-labs/tether/internal/storage/ristretto"
	"github.com/meridian-labs/tether/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tetherd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging.Level)

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// The sqlite store always runs: it backs the identity map and tickets
	// even when the session tier lives elsewhere.
	db, err := sqlite.New(filepath.Join(cfg.Storage.DataPath, "tether.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	var sessions storage.SessionStore = db.Sessions()
	if cfg.Storage.SessionEngine == "ristretto" {
		cache, err := ristretto.NewSessionStore(1 << 16)
		if err != nil {
			return err
		}
		defer cache.Close()
		sessions = cache
	}

	recent, err := chromem.NewRecentIndex()
	if err != nil {
		return err
	}
	defer recent.Close()

	var archive storage.ArchiveStore
	if cfg.Storage.ArchiveEngine == "postgres" {
		pg, err := postgres.NewArchive(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
		if err != nil {
			return err
		}
		archive = pg
	} else {
		archive, err = chromem.NewArchive()
		if err != nil {
			return err
		}
	}
	defer archive.Close()

	embedder := buildEmbedder(cfg)
	hub := server.NewEventHub(logger)

	eng, err := engine.New(engine.Deps{
		Sessions:    sessions,
		Recent:      recent,
		Archive:     archive,
		IdentityMap: db.IdentityMap(),
		Tickets:     db.Tickets(),
		Embedder:    embedder,
		Hasher:      identity.NewSHA256Hasher(cfg.Identity.HashPepper),
		Events:      hub,
		Logger:      logger,
	}, engine.Options{
		TopK:       cfg.Pipeline.TopK,
		SessionTTL: cfg.Pipeline.SessionTTL,
		ReadBudget: cfg.Pipeline.ReadBudget,
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg, eng, hub, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildEmbedder assembles the embedding provider with its hardening wrappers.
// Only the deterministic dev provider ships in-tree; real providers plug in
// here.
func buildEmbedder(cfg *config.Config) embedding.Provider {
	var provider embedding.Provider = embedding.NewFakeProvider(cfg.Embedding.Dimension)
	provider = embedding.WithBreaker(provider, embedding.DefaultBreakerConfig())
	if cfg.Embedding.RatePerSecond > 0 {
		provider = embedding.WithRateLimit(provider, cfg.Embedding.RatePerSecond, cfg.Embedding.RateBurst)
	}
	return provider
}
