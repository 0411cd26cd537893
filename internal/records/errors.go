package records

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the store. Callers match them with errors.Is.
var (
	// ErrNotFound reports a missing record, or one outside the caller's project.
	ErrNotFound = errors.New("record not found")
	// ErrRevisionConflict reports a stale revision or a wrong predecessor status.
	// Callers should reload the record before deciding whether to retry.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrInvalidTransition reports a requested status no worker transition can reach.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation reports malformed input such as filters or pagination.
	ErrValidation = errors.New("validation failed")
)

// Error kinds reported by ErrorKind.
const (
	KindNotFound          = "not_found"
	KindConflict          = "conflict"
	KindInvalidTransition = "invalid_transition"
	KindValidation        = "validation"
	KindInternal          = "internal"
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// ErrorKind classifies err for transport mapping. Unknown errors are internal.
func ErrorKind(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRevisionConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

func notFound(id int64) error {
	return fmt.Errorf("record %d: %w", id, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func claimedConflict(id int64, status Status) error {
	return fmt.Errorf("%w: record %d is held by a worker (%s)", ErrRevisionConflict, id, status)
}
