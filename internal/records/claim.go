package records

import (
	"context"
	"database/sql"
	"fmt"
)

// Poll claims up to req.Limit READY records, oldest modification first, and
// moves each to QUEUED in the same transaction. A record is handed to at most
// one caller. An empty result is not an error.
func (s *Store) Poll(ctx context.Context, req PollRequest) ([]*Record, error) {
	ctx = ensureContext(ctx)
	if req.Limit < 1 {
		return nil, invalid("limit must be at least 1")
	}
	if s.maxPollLimit > 0 && req.Limit > s.maxPollLimit {
		return nil, invalid("limit must not exceed %d", s.maxPollLimit)
	}

	query := "SELECT " + recordColumns + recordFrom + " WHERE m.status = ?"
	args := []any{string(StatusReady)}
	if len(req.SourceTypes) > 0 {
		query += " AND r.source_type IN (" + makePlaceholders(len(req.SourceTypes)) + ")"
		args = append(args, stringArgs(req.SourceTypes)...)
	}
	query += " ORDER BY m.modified_at, m.record_id LIMIT ?" + s.dialect.claimLock
	args = append(args, req.Limit)

	var claimed []*Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		candidates, err := s.queryRecords(ctx, tx, query, args...)
		if err != nil {
			return fmt.Errorf("select claimable records: %w", err)
		}
		now := s.now()
		for _, rec := range candidates {
			next := rec.Metadata.advance(StatusQueued, MessageQueued, now)
			if err := s.updateMetadata(ctx, tx, rec.ID, rec.Metadata, next); err != nil {
				return err
			}
			rec.Metadata = next
			claimed = append(claimed, rec)
		}
		return s.attachSummaries(ctx, tx, claimed)
	})
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return claimed, nil
}
