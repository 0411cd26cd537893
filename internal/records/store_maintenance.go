package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DatabaseHealth describes store connectivity for diagnostics.
type DatabaseHealth struct {
	Driver         string
	Location       string
	SchemaVersion  uint
	Reachable      bool
	IntegrityCheck bool
	TotalRecords   int
	Error          string
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM metadata GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates record counts for diagnostic output. Every known status
// is present in the result.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{Counts: make(map[Status]int, len(allStatuses))}
	for _, status := range allStatuses {
		health.Counts[status] = 0
	}
	for status, count := range stats {
		health.Counts[status] += count
		health.Total += count
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the store.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{Driver: s.dialect.name, Location: s.location}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping store: %w", err)
	}
	health.Reachable = true

	version, err := s.SchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM records").Scan(&health.TotalRecords); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count records: %w", err)
	}

	if s.dialect.name != sqliteDialect.name {
		health.IntegrityCheck = true
		return health, nil
	}
	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}

// ResetStale returns QUEUED and PROCESSING records last modified before
// cutoff to READY so another worker can claim them. Each reclaimed record's
// revision advances, so the stalled worker's later reports conflict.
func (s *Store) ResetStale(ctx context.Context, cutoff time.Time) ([]int64, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + recordColumns + recordFrom +
		" WHERE m.status IN (?, ?) AND m.modified_at < ? ORDER BY m.modified_at, m.record_id" + s.dialect.claimLock

	var reclaimed []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		reclaimed = nil
		stale, err := s.queryRecords(ctx, tx, query, string(StatusQueued), string(StatusProcessing), s.dialect.timeArg(cutoff))
		if err != nil {
			return fmt.Errorf("select stale records: %w", err)
		}
		now := s.now()
		for _, rec := range stale {
			next := rec.Metadata.advance(StatusReady, MessageReclaimed, now)
			if err := s.updateMetadata(ctx, tx, rec.ID, rec.Metadata, next); err != nil {
				return err
			}
			reclaimed = append(reclaimed, rec.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset stale records: %w", err)
	}
	return reclaimed, nil
}
