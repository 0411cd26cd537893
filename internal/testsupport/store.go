package testsupport

import (
	"context"
	"testing"

	"ingest/internal/config"
	"ingest/internal/records"
)

// DefaultIdentity is the producer scope used by helpers.
var DefaultIdentity = records.Identity{ProjectID: "project-1", UserID: "user-1"}

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord creates a record under DefaultIdentity. With withContent set it
// carries one attachment and starts READY.
func NewRecord(t testing.TB, store *records.Store, sourceType, sourceID string, withContent bool) *records.Record {
	t.Helper()

	in := records.NewRecord{SourceType: sourceType, SourceID: sourceID}
	if withContent {
		in.Contents = []records.Content{{
			ContentInfo: records.ContentInfo{FileName: "upload.bin", ContentType: "application/octet-stream"},
			Data:        Payload(32),
		}}
	}
	rec, err := store.Create(context.Background(), DefaultIdentity, in)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}
