package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ingest/internal/records"
)

func TestObservePollAndTransition(t *testing.T) {
	m := New(nil)
	m.ObservePoll(3, nil)
	m.ObservePoll(0, nil)
	m.ObservePoll(0, errors.New("boom"))
	m.ObserveTransition(records.StatusProcessing, nil)
	m.ObserveTransition(records.StatusSucceeded, records.ErrRevisionConflict)
	m.ObserveReclaimed(2)

	if got := testutil.ToFloat64(m.claimed); got != 3 {
		t.Fatalf("claimed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.polls.WithLabelValues("empty")); got != 1 {
		t.Fatalf("empty polls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("SUCCEEDED", records.KindConflict)); got != 1 {
		t.Fatalf("conflicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reclaimed); got != 2 {
		t.Fatalf("reclaimed = %v, want 2", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObservePoll(1, nil)
	m.ObserveTransition(records.StatusFailed, nil)
	m.ObserveReclaimed(1)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(nil)
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/api/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/"+id, nil))
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/records/{id}", "404")); got != 3 {
		t.Fatalf("requests by pattern = %v, want 3", got)
	}
}

func TestStatusGaugeAndHandler(t *testing.T) {
	m := New(func(context.Context) (records.HealthSummary, error) {
		return records.HealthSummary{Total: 4, Counts: map[records.Status]int{records.StatusReady: 3, records.StatusFailed: 1}}, nil
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`ingest_records{status="READY"} 3`,
		`ingest_records{status="FAILED"} 1`,
		`ingest_records{status="QUEUED"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition:\n%s", want, body)
		}
	}
}
