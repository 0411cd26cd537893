package daemon_test

import (
	"context"
	"testing"
	"time"

	"ingest/internal/config"
	"ingest/internal/daemon"
	"ingest/internal/logging"
	"ingest/internal/records"
	"ingest/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *records.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if d.Addr() == "" {
		t.Fatal("expected api listener address")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if !status.Store.Reachable || status.Store.Driver != config.DriverSQLite {
		t.Fatalf("unexpected store status: %+v", status.Store)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.Addr() != "" {
		t.Fatalf("expected listener closed, got %q", d.Addr())
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	second, err := daemon.New(cfg, testsupport.MustOpenStore(t, cfg), logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(second.Stop)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected lock contention error")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestReapOnceReturnsStaleClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStaleAfter(60, 30))
	d, store := newDaemon(t, cfg)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	store.SetClock(func() time.Time { return past })
	stale := testsupport.NewRecord(t, store, "gpx", "stale", true)
	if _, err := store.Poll(ctx, records.PollRequest{Limit: 1}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	store.SetClock(nil)
	fresh := testsupport.NewRecord(t, store, "gpx", "fresh", true)
	if _, err := store.Poll(ctx, records.PollRequest{Limit: 1}); err != nil {
		t.Fatalf("poll: %v", err)
	}

	ids, err := d.ReapOnce(ctx)
	if err != nil {
		t.Fatalf("ReapOnce: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("expected only %d reclaimed, got %v", stale.ID, ids)
	}

	got, err := store.Get(ctx, records.Identity{}, stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metadata.Status != records.StatusReady || got.Metadata.Revision != 3 {
		t.Fatalf("unexpected reclaimed metadata: %+v", got.Metadata)
	}
	if got.Metadata.Message != records.MessageReclaimed {
		t.Fatalf("unexpected message %q", got.Metadata.Message)
	}

	kept, err := store.Get(ctx, records.Identity{}, fresh.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if kept.Metadata.Status != records.StatusQueued {
		t.Fatalf("expected fresh claim kept, got %s", kept.Metadata.Status)
	}
}

func TestReapOnceDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	ids, err := d.ReapOnce(context.Background())
	if err != nil || ids != nil {
		t.Fatalf("expected no-op, got %v %v", ids, err)
	}
}
