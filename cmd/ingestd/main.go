package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"ingest/internal/config"
	"ingest/internal/daemon"
	"ingest/internal/logging"
	"ingest/internal/records"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, retentionTargets(cfg)...)

	store, err := records.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open record store", "startup_failed",
			logging.Error(err),
			logging.String("store", cfg.StoreLocation()),
		)
		log.Fatalf("open record store: %v", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		store.Close()
		log.Fatalf("source types: %v", err)
	}

	d, err := daemon.New(cfg, store, logger, registry)
	if err != nil {
		store.Close()
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("ingestd shutting down")
}
