package records

import (
	"fmt"
	"time"
)

// ValidateTransition checks a worker-requested status against the stored one.
//
// PROCESSING requires QUEUED; SUCCEEDED and FAILED require PROCESSING. A wrong
// predecessor is a conflict. Any other requested status is invalid input.
// Claims (READY to QUEUED), uploads and resets are store-driven and bypass this
// check.
func ValidateTransition(current, requested Status) error {
	var want Status
	switch requested {
	case StatusProcessing:
		want = StatusQueued
	case StatusSucceeded, StatusFailed:
		want = StatusProcessing
	default:
		return fmt.Errorf("%w: %q cannot be requested by a worker", ErrInvalidTransition, requested)
	}
	if current != want {
		return fmt.Errorf("%w: %s requires %s, record is %s", ErrRevisionConflict, requested, want, current)
	}
	return nil
}

// checkRevision reports a conflict when the presented revision is stale.
func checkRevision(stored, expected int64) error {
	if stored != expected {
		return fmt.Errorf("%w: expected revision %d, stored %d", ErrRevisionConflict, expected, stored)
	}
	return nil
}

// advance applies an accepted transition: new status and message, revision +1,
// modified time refreshed.
func (m Metadata) advance(status Status, message string, now time.Time) Metadata {
	next := m
	next.Status = status
	next.Message = message
	next.Revision = m.Revision + 1
	next.ModifiedAt = now
	return next
}

// resetTarget returns the status a reset lands on.
func resetTarget(hasContent bool) Status {
	if hasContent {
		return StatusReady
	}
	return StatusIncomplete
}

// initialStatus returns the status of a freshly created record.
func initialStatus(hasContent bool) Status {
	return resetTarget(hasContent)
}
