package main

import (
	"strings"
	"testing"

	"ingest/internal/api"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"PROCESSING": "Processing",
		"ready":      "Ready",
		" FAILED ":   "Failed",
		"":           "",
	}
	for in, want := range cases {
		if got := formatStatusLabel(in); got != want {
			t.Errorf("formatStatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildStatusRowsIncludesZeroCounts(t *testing.T) {
	rows := buildStatusRows(api.QueueStats{Total: 3, Counts: map[string]int{"READY": 2, "FAILED": 1}})
	if len(rows) != 7 {
		t.Fatalf("expected six statuses plus total, got %d rows", len(rows))
	}
	if rows[0][0] != "Incomplete" || rows[0][1] != "0" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if last := rows[len(rows)-1]; last[0] != "Total" || last[1] != "3" {
		t.Fatalf("unexpected total row: %v", last)
	}
}

func TestBuildRecordRowsTruncatesMessage(t *testing.T) {
	rows := buildRecordRows([]api.Record{{ID: 7, Status: "QUEUED", Message: strings.Repeat("x", 80)}})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0][0] != "7" || rows[0][4] != "Queued" {
		t.Fatalf("unexpected row: %v", rows[0])
	}
	if n := len([]rune(rows[0][7])); n != 40 {
		t.Fatalf("expected message truncated to 40 runes, got %d", n)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Status", "Count"}, [][]string{{"Ready", "2"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "Status") || !strings.Contains(out, "Ready") {
		t.Fatalf("unexpected table: %q", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
