package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ingest/internal/records"
	"ingest/internal/testsupport"
)

func TestResetStaleReclaimsOldClaims(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })
	queued := testsupport.NewRecord(t, store, "gpx", "queued", true)
	processing := testsupport.NewRecord(t, store, "gpx", "processing", true)
	claimed, err := store.Poll(ctx, records.PollRequest{Limit: 2})
	if err != nil || len(claimed) != 2 {
		t.Fatalf("Poll = %v, %v", claimed, err)
	}
	var procRev int64
	for _, rec := range claimed {
		if rec.ID == processing.ID {
			procRev = rec.Metadata.Revision
		}
	}
	started, err := store.StartProcessing(ctx, records.TransitionRequest{ID: processing.ID, Revision: procRev, Status: records.StatusProcessing})
	if err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	store.SetClock(func() time.Time { return base.Add(time.Hour) })
	fresh := testsupport.NewRecord(t, store, "gpx", "fresh", true)
	if _, err := store.Poll(ctx, records.PollRequest{Limit: 1}); err != nil {
		t.Fatalf("Poll fresh failed: %v", err)
	}

	reclaimed, err := store.ResetStale(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ResetStale failed: %v", err)
	}
	if len(reclaimed) != 2 {
		t.Fatalf("expected two reclaimed records, got %v", reclaimed)
	}

	for _, id := range []int64{queued.ID, processing.ID} {
		got, err := store.Get(ctx, records.Identity{}, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Metadata.Status != records.StatusReady || got.Metadata.Message != records.MessageReclaimed {
			t.Fatalf("record %d = %+v, expected reclaimed READY", id, got.Metadata)
		}
	}
	got, err := store.Get(ctx, records.Identity{}, fresh.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Metadata.Status != records.StatusQueued {
		t.Fatalf("fresh claim should be untouched, got %s", got.Metadata.Status)
	}

	// The stalled worker's report now conflicts.
	_, err = store.FinalizeProcessing(ctx, records.TransitionRequest{ID: processing.ID, Revision: started.Metadata.Revision, Status: records.StatusSucceeded})
	if !errors.Is(err, records.ErrRevisionConflict) {
		t.Fatalf("expected conflict for stalled worker, got %v", err)
	}
}
