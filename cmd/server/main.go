// Copyright (c) 2026 PillsMe
//
// This file is part of pillsme-auth.
//
// pillsme-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@pillsme.app for commercial licensing options.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pillsme/pillsme-auth/internal/config"
	"github.com/pillsme/pillsme-auth/internal/datastore"
	"github.com/pillsme/pillsme-auth/internal/rest"
	"github.com/pillsme/pillsme-auth/pkg/audit"
	"github.com/pillsme/pillsme-auth/pkg/metrics"
	"github.com/pillsme/pillsme-auth/pkg/passkey"
	"github.com/pillsme/pillsme-auth/pkg/ratelimit"
	"github.com/pillsme/pillsme-auth/pkg/session"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// challengePruneInterval is how often expired pending challenges are
// removed from the database.
const challengePruneInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pillsme-auth server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("PM_CONFIG"); envConfig != "" && *configPath == "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Passkey.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting pillsme-auth",
		"version", version,
		"environment", cfg.Environment,
		"rp_id", cfg.Passkey.RPID,
		"listen", cfg.Listen)

	db, err := datastore.Open(cfg.Datastore)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := datastore.Migrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	codec, err := session.NewCodec(cfg.SessionSecret)
	if err != nil {
		logger.Error("failed to create session codec", "error", err)
		os.Exit(1)
	}

	emitter := audit.NewEmitter(datastore.NewAuditStore(db), logger)

	service, err := passkey.NewService(passkey.ServiceParams{
		Config:          &cfg.Passkey,
		CredentialStore: datastore.NewCredentialStore(db),
		ChallengeStore:  datastore.NewChallengeStore(db),
		UserDirectory:   datastore.NewUserDirectory(db),
		Preferences:     datastore.NewPreferenceStore(db),
		TokenCodec:      codec,
		Audit:           emitter,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create passkey service", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(&cfg.RateLimit)
	defer limiter.Stop()

	shutdownCtx := setupSignalHandler(logger)

	metrics.SetEnabled(cfg.Metrics)
	if cfg.Metrics {
		collector := metrics.NewResourceCollector(shutdownCtx, 15*time.Second)
		go collector.Start()
		defer collector.Stop()
	}

	go pruneChallenges(shutdownCtx, datastore.NewChallengeStore(db), logger)

	server, err := rest.NewServer(&rest.Config{
		Listen:       cfg.Listen,
		Service:      service,
		Sessions:     codec,
		SecureCookie: session.SecureForOrigins(cfg.Environment, cfg.Passkey.RPOrigins),
		Limiter:      limiter,
		Metrics:      cfg.Metrics,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		logger.Error("server error", "error", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(stopCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}

	// Drain pending audit writes before exit.
	emitter.Flush()

	logger.Info("server stopped")
}

// pruneChallenges periodically deletes expired pending challenges.
func pruneChallenges(ctx context.Context, store *datastore.ChallengeStore, logger *slog.Logger) {
	ticker := time.NewTicker(challengePruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := store.PruneExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("failed to prune expired challenges", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Debug("pruned expired challenges", "count", pruned)
			}
		}
	}
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	return ctx
}
