package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ingest/internal/api"
	"ingest/internal/records"
)

var titleCaser = cases.Title(language.Und)

// formatStatusLabel renders "PROCESSING" as "Processing".
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(strings.ReplaceAll(status, "_", " ")))
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return value
}

func truncate(value string, width int) string {
	value = strings.TrimSpace(value)
	if width <= 0 || len([]rune(value)) <= width {
		return value
	}
	r := []rune(value)
	return string(r[:width-1]) + "…"
}

func buildRecordRows(recs []api.Record) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", rec.ID),
			rec.ProjectID,
			rec.SourceType,
			truncate(rec.SourceID, 24),
			formatStatusLabel(rec.Status),
			fmt.Sprintf("%d", rec.Revision),
			formatDisplayTime(rec.ModifiedAt),
			truncate(rec.Message, 40),
		})
	}
	return rows
}

var recordHeaders = []string{"ID", "Project", "Source Type", "Source ID", "Status", "Rev", "Modified", "Message"}

var recordAligns = []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}

// buildStatusRows lists every status in lifecycle order, including zero counts.
func buildStatusRows(stats api.QueueStats) [][]string {
	rows := make([][]string, 0, len(stats.Counts)+1)
	seen := make(map[string]struct{}, len(stats.Counts))
	for _, status := range records.AllStatuses() {
		key := string(status)
		seen[key] = struct{}{}
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats.Counts[key])})
	}
	var extra []string
	for key := range stats.Counts {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats.Counts[key])})
	}
	rows = append(rows, []string{"Total", fmt.Sprintf("%d", stats.Total)})
	return rows
}
