package records_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ingest/internal/records"
	"ingest/internal/testsupport"
)

// setupPostgres starts a disposable PostgreSQL container. Set
// INGEST_TEST_POSTGRES=1 to run it.
func setupPostgres(t *testing.T) *records.Store {
	t.Helper()

	if testing.Short() || os.Getenv("INGEST_TEST_POSTGRES") == "" {
		t.Skip("skipping postgres integration test: INGEST_TEST_POSTGRES not set")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("ingest_test"),
		postgres.WithUsername("ingest"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return testsupport.MustOpenStore(t, testsupport.NewConfig(t, testsupport.WithPostgres(dsn)))
}

func TestPostgresLifecycle(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	if store.Driver() != "postgres" {
		t.Fatalf("expected postgres driver, got %q", store.Driver())
	}

	rec := testsupport.NewRecord(t, store, "gpx", "pg-1", false)
	rec, err := store.AttachContent(ctx, testsupport.DefaultIdentity, rec.ID, records.Content{
		ContentInfo: records.ContentInfo{FileName: "a.gpx", ContentType: "application/gpx+xml"},
		Data:        testsupport.Payload(128),
	}, &records.Declared{Time: time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC), Offset: -3600})
	if err != nil {
		t.Fatalf("AttachContent failed: %v", err)
	}
	if rec.Metadata.Status != records.StatusReady || rec.Metadata.Revision != 2 {
		t.Fatalf("after attach = %s rev %d", rec.Metadata.Status, rec.Metadata.Revision)
	}

	claimed, err := store.Poll(ctx, records.PollRequest{Limit: 1})
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Poll = %v, %v", claimed, err)
	}
	started, err := store.StartProcessing(ctx, records.TransitionRequest{ID: rec.ID, Revision: 3, Status: records.StatusProcessing})
	if err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	logs := "ok"
	done, err := store.FinalizeProcessing(ctx, records.TransitionRequest{ID: rec.ID, Revision: started.Metadata.Revision, Status: records.StatusSucceeded, Logs: &logs})
	if err != nil {
		t.Fatalf("FinalizeProcessing failed: %v", err)
	}
	if done.Metadata.Revision != 5 || done.Logs == nil {
		t.Fatalf("unexpected finalize result %+v", done.Metadata)
	}
	if _, err := store.StartProcessing(ctx, records.TransitionRequest{ID: rec.ID, Revision: 3, Status: records.StatusProcessing}); !errors.Is(err, records.ErrRevisionConflict) {
		t.Fatalf("expected conflict on stale revision, got %v", err)
	}
}

func TestPostgresConcurrentPolls(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	const total = 30
	for i := 0; i < total; i++ {
		testsupport.NewRecord(t, store, "gpx", fmt.Sprintf("pg-%d", i), true)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	for p := 0; p < 6; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := store.Poll(ctx, records.PollRequest{Limit: 4})
				if err != nil {
					t.Errorf("Poll failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, rec := range claimed {
					seen[rec.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d claims, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("record %d claimed %d times", id, count)
		}
	}
}
