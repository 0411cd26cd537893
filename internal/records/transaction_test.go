package records_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"ingest/internal/records"
	"ingest/internal/testsupport"
)

func TestConcurrentStartProcessingSingleWinner(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	rec := testsupport.NewRecord(t, store, "gpx", "a", false)
	if _, err := store.AttachContent(ctx, testsupport.DefaultIdentity, rec.ID, records.Content{ContentInfo: records.ContentInfo{FileName: "a.gpx"}, Data: []byte("<gpx/>")}, nil); err != nil {
		t.Fatalf("AttachContent failed: %v", err)
	}
	claimed, err := store.Poll(ctx, records.PollRequest{Limit: 1})
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Poll = %v, %v", claimed, err)
	}
	revision := claimed[0].Metadata.Revision

	const workers = 2
	type outcome struct {
		rec *records.Record
		err error
	}
	results := make(chan outcome, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			updated, err := store.StartProcessing(ctx, records.TransitionRequest{ID: rec.ID, Revision: revision, Status: records.StatusProcessing})
			results <- outcome{rec: updated, err: err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, conflicts int
	for res := range results {
		switch {
		case res.err == nil:
			wins++
			if res.rec.Metadata.Revision != 4 {
				t.Fatalf("winner revision = %d, want 4", res.rec.Metadata.Revision)
			}
		case errors.Is(res.err, records.ErrRevisionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", res.err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", wins, conflicts)
	}
}

func TestDuplicateFinalizeConflicts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "gpx", "a", true)
	claimed, _ := store.Poll(ctx, records.PollRequest{Limit: 1})
	started, err := store.StartProcessing(ctx, records.TransitionRequest{ID: claimed[0].ID, Revision: claimed[0].Metadata.Revision, Status: records.StatusProcessing})
	if err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	req := records.TransitionRequest{ID: started.ID, Revision: started.Metadata.Revision, Status: records.StatusSucceeded, Message: "done"}
	if _, err := store.FinalizeProcessing(ctx, req); err != nil {
		t.Fatalf("first finalize failed: %v", err)
	}
	if _, err := store.FinalizeProcessing(ctx, req); !errors.Is(err, records.ErrRevisionConflict) {
		t.Fatalf("duplicate finalize: expected conflict, got %v", err)
	}
	req.Status = records.StatusFailed
	if _, err := store.FinalizeProcessing(ctx, req); !errors.Is(err, records.ErrRevisionConflict) {
		t.Fatalf("contradicting finalize: expected conflict, got %v", err)
	}
}

func TestMessageIsTruncated(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "gpx", "a", true)
	claimed, _ := store.Poll(ctx, records.PollRequest{Limit: 1})

	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'x'
	}
	started, err := store.StartProcessing(ctx, records.TransitionRequest{ID: claimed[0].ID, Revision: claimed[0].Metadata.Revision, Status: records.StatusProcessing, Message: string(long)})
	if err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if len(started.Metadata.Message) != 4096 {
		t.Fatalf("expected truncated message, got %d bytes", len(started.Metadata.Message))
	}

	multiByte := "x" + strings.Repeat("é", 3000)
	finished, err := store.FinalizeProcessing(ctx, records.TransitionRequest{ID: started.ID, Revision: started.Metadata.Revision, Status: records.StatusFailed, Message: multiByte})
	if err != nil {
		t.Fatalf("FinalizeProcessing failed: %v", err)
	}
	got := finished.Metadata.Message
	if len(got) != 4095 || !utf8.ValidString(got) {
		t.Fatalf("expected 4095 valid bytes, got %d (valid=%v)", len(got), utf8.ValidString(got))
	}
	reloaded, err := store.Get(ctx, records.Identity{}, started.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if reloaded.Metadata.Message != got {
		t.Fatal("stored message differs from returned message")
	}
}
