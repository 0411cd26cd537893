package api

import (
	"fmt"
	"net/url"
	"time"

	"ingest/internal/records"
	"ingest/internal/sourcetypes"
)

// RecordURL returns the API path of a record.
func RecordURL(id int64) string {
	return fmt.Sprintf("/api/records/%d", id)
}

// LogsURL returns the API path of a record's logs.
func LogsURL(id int64) string {
	return RecordURL(id) + "/logs"
}

// ContentURL returns the API path of a named attachment.
func ContentURL(id int64, fileName string) string {
	return RecordURL(id) + "/contents/" + url.PathEscape(fileName)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromRecord converts a store record to its API representation.
func FromRecord(rec *records.Record) Record {
	if rec == nil {
		return Record{}
	}
	dto := Record{
		ID:         rec.ID,
		ProjectID:  rec.ProjectID,
		UserID:     rec.UserID,
		SourceType: rec.SourceType,
		SourceID:   rec.SourceID,
		TimeOffset: rec.TimeOffset,
		CreatedAt:  formatTime(rec.CreatedAt),
		Status:     string(rec.Metadata.Status),
		Message:    rec.Metadata.Message,
		Revision:   rec.Metadata.Revision,
		ModifiedAt: formatTime(rec.Metadata.ModifiedAt),
		Contents:   make([]ContentSummary, 0, len(rec.Contents)),
	}
	if rec.DeclaredTime != nil {
		dto.DeclaredTime = formatTime(*rec.DeclaredTime)
	}
	for _, c := range rec.Contents {
		dto.Contents = append(dto.Contents, ContentSummary{
			FileName:    c.FileName,
			ContentType: c.ContentType,
			Size:        c.Size,
			CreatedAt:   formatTime(c.CreatedAt),
			URL:         ContentURL(rec.ID, c.FileName),
		})
	}
	if rec.Logs != nil {
		dto.Logs = &LogsSummary{
			Size:       rec.Logs.Size,
			ModifiedAt: formatTime(rec.Logs.ModifiedAt),
			URL:        LogsURL(rec.ID),
		}
	}
	return dto
}

// FromRecords converts a slice of store records.
func FromRecords(recs []*records.Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromHealth converts per-status counts, including zero entries.
func FromHealth(summary records.HealthSummary) QueueStats {
	stats := QueueStats{Total: summary.Total, Counts: make(map[string]int, len(summary.Counts))}
	for _, status := range records.AllStatuses() {
		stats.Counts[string(status)] = summary.Counts[status]
	}
	return stats
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(h records.DatabaseHealth) StoreStatus {
	return StoreStatus{
		Driver:         h.Driver,
		Location:       h.Location,
		SchemaVersion:  h.SchemaVersion,
		Reachable:      h.Reachable,
		IntegrityCheck: h.IntegrityCheck,
		Error:          h.Error,
	}
}

// SourceTypeHealthSlice converts converter health in registry order.
func SourceTypeHealthSlice(health []sourcetypes.Health) []SourceTypeHealth {
	out := make([]SourceTypeHealth, 0, len(health))
	for _, h := range health {
		out = append(out, SourceTypeHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}
