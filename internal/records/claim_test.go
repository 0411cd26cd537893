package records_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ingest/internal/records"
	"ingest/internal/testsupport"
)

func TestPollOldestModifiedFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })
	first := testsupport.NewRecord(t, store, "gpx", "first", true)
	second := testsupport.NewRecord(t, store, "gpx", "second", true)

	store.SetClock(func() time.Time { return base.Add(time.Minute) })
	if _, err := store.Reset(ctx, records.Identity{}, first.ID); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	claimed, err := store.Poll(ctx, records.PollRequest{Limit: 1})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != second.ID {
		t.Fatalf("expected the older record %d first, got %v", second.ID, claimed)
	}
	claimed, err = store.Poll(ctx, records.PollRequest{Limit: 5})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != first.ID {
		t.Fatalf("expected record %d next, got %v", first.ID, claimed)
	}
}

func TestPollRestrictsSourceTypes(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	gpx := testsupport.NewRecord(t, store, "gpx", "a", true)
	fit := testsupport.NewRecord(t, store, "fit", "b", true)
	testsupport.NewRecord(t, store, "tcx", "c", false)

	claimed, err := store.Poll(ctx, records.PollRequest{Limit: 10, SourceTypes: []string{"fit", "kml"}})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != fit.ID {
		t.Fatalf("expected only the fit record, got %v", claimed)
	}

	claimed, err = store.Poll(ctx, records.PollRequest{Limit: 10})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != gpx.ID {
		t.Fatalf("expected the gpx record, INCOMPLETE records are never claimed; got %v", claimed)
	}
}

func TestPollEmptyIsNotAnError(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	claimed, err := store.Poll(context.Background(), records.PollRequest{Limit: 3})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no records, got %v", claimed)
	}
}

func TestPollValidatesLimit(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	for _, limit := range []int{0, -1, 101} {
		if _, err := store.Poll(context.Background(), records.PollRequest{Limit: limit}); !errors.Is(err, records.ErrValidation) {
			t.Fatalf("limit %d: expected validation error, got %v", limit, err)
		}
	}
}

func TestConcurrentPollsClaimEachRecordOnce(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const total = 40
	for i := 0; i < total; i++ {
		testsupport.NewRecord(t, store, "gpx", fmt.Sprintf("s-%d", i), true)
	}

	const pollers = 8
	var (
		mu      sync.Mutex
		seen    = make(map[int64]int)
		wg      sync.WaitGroup
		errOnce sync.Once
		pollErr error
	)
	for p := 0; p < pollers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := store.Poll(ctx, records.PollRequest{Limit: 3})
				if err != nil {
					errOnce.Do(func() { pollErr = err })
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

	if pollErr != nil {
		t.Fatalf("Poll failed: %v", pollErr)
	}
	if len(seen) != total {
		t.Fatalf("expected %d distinct claims, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("record %d claimed %d times", id, count)
		}
	}
}

func TestConcurrentPollersRaceForOneRecord(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	rec := testsupport.NewRecord(t, store, "gpx", "only", true)

	const pollers = 10
	results := make(chan int, pollers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := store.Poll(ctx, records.PollRequest{Limit: 1})
			if err != nil {
				results <- -1
				return
			}
			results <- len(claimed)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for n := range results {
		if n < 0 {
			t.Fatal("Poll returned an error")
		}
		wins += n
	}
	if wins != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins)
	}
	got, err := store.Get(ctx, records.Identity{}, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Metadata.Status != records.StatusQueued || got.Metadata.Revision != 2 {
		t.Fatalf("expected QUEUED rev 2, got %s rev %d", got.Metadata.Status, got.Metadata.Revision)
	}
}
