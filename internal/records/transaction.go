package records

import (
	"context"
	"database/sql"
	"fmt"
)

// StartProcessing moves a claimed record from QUEUED to PROCESSING.
func (s *Store) StartProcessing(ctx context.Context, req TransitionRequest) (*Record, error) {
	return s.transition(ctx, req, func(requested Status) bool {
		return requested == StatusProcessing
	})
}

// FinalizeProcessing moves a record from PROCESSING to SUCCEEDED or FAILED.
// A non-nil req.Logs replaces the record's logs in the same transaction.
func (s *Store) FinalizeProcessing(ctx context.Context, req TransitionRequest) (*Record, error) {
	return s.transition(ctx, req, func(requested Status) bool {
		return requested == StatusSucceeded || requested == StatusFailed
	})
}

// Transition dispatches a worker report to StartProcessing or
// FinalizeProcessing by requested status.
func (s *Store) Transition(ctx context.Context, req TransitionRequest) (*Record, error) {
	return s.transition(ctx, req, nil)
}

// transition runs the checks in order: existence, revision, then the state
// machine. A stale revision is a conflict whatever status was requested.
func (s *Store) transition(ctx context.Context, req TransitionRequest, accepts func(Status) bool) (*Record, error) {
	ctx = ensureContext(ctx)
	if req.ID <= 0 {
		return nil, invalid("id must be positive")
	}

	var updated *Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := s.loadRecord(ctx, tx, req.ID, true)
		if err != nil {
			return err
		}
		if err := checkRevision(rec.Metadata.Revision, req.Revision); err != nil {
			return err
		}
		if accepts != nil && !accepts(req.Status) {
			return fmt.Errorf("%w: %q is not accepted here", ErrInvalidTransition, req.Status)
		}
		if err := ValidateTransition(rec.Metadata.Status, req.Status); err != nil {
			return err
		}

		now := s.now()
		next := rec.Metadata.advance(req.Status, truncateMessage(req.Message), now)
		if err := s.updateMetadata(ctx, tx, rec.ID, rec.Metadata, next); err != nil {
			return err
		}
		if req.Logs != nil && req.Status.IsTerminal() {
			if err := s.upsertLogs(ctx, tx, rec.ID, *req.Logs, now); err != nil {
				return err
			}
		}
		rec.Metadata = next
		if err := s.attachSummaries(ctx, tx, []*Record{rec}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition record %d to %s: %w", req.ID, req.Status, err)
	}
	return updated, nil
}
