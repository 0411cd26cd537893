package api

import (
	"context"
	"errors"
	"net/http"

	"ingest/internal/records"
)

// HTTPStatus maps a service error onto a response status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	switch records.ErrorKind(err) {
	case records.KindNotFound:
		return http.StatusNotFound
	case records.KindConflict:
		return http.StatusConflict
	case records.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case records.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the JSON error body. Internal errors are not echoed.
func NewErrorResponse(err error) ErrorResponse {
	kind := records.ErrorKind(err)
	if kind == records.KindInternal {
		return ErrorResponse{Error: "internal error", Kind: kind}
	}
	return ErrorResponse{Error: err.Error(), Kind: kind}
}
