package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"ingest/internal/api"
	"ingest/internal/config"
	"ingest/internal/logging"
	"ingest/internal/metrics"
	"ingest/internal/records"
	"ingest/internal/sourcetypes"
)

// Daemon coordinates the API server and the stale-claim reaper and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *records.Store
	registry *sourcetypes.Registry
	metrics  *metrics.Metrics
	svc      *api.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	Store        records.DatabaseHealth
	Queue        records.HealthSummary
	SourceTypes  []sourcetypes.Health
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *records.Store, logger *slog.Logger, registry *sourcetypes.Registry) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if registry == nil {
		var err error
		registry, err = sourcetypes.NewRegistry(cfg.SourceTypes.Enabled...)
		if err != nil {
			return nil, fmt.Errorf("source types: %w", err)
		}
	}

	m := metrics.New(store.Health)
	svc := api.NewService(store, api.Options{
		DefaultPollLimit: cfg.Queue.DefaultPollLimit,
		Registry:         registry,
		Metrics:          m,
		Logger:           logger,
	})

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		metrics:  m,
		svc:      svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api-server"))
	return d, nil
}

// Start acquires the daemon lock, begins serving the API and launches the reaper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ingest daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	if interval, staleAfter, ok := d.reaperTiming(); ok {
		d.wg.Add(1)
		go d.reapLoop(d.ctx, interval, staleAfter)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("ingest daemon started",
		logging.String("lock", d.lockPath),
		logging.String("store", d.store.Location()),
		logging.String("address", d.Addr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("ingest daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the address the API listens on, or empty when not serving.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Metrics returns the daemon's metric set.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		LockFilePath: d.lockPath,
		SourceTypes:  d.registry.HealthCheck(ctx),
	}
	health, err := d.store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	status.Store = health
	if summary, err := d.store.Health(ctx); err == nil {
		status.Queue = summary
	} else {
		d.logger.Warn("queue health unavailable", logging.Error(err))
	}
	return status
}
