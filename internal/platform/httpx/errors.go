// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the domain layer. Each maps to one bucket of the
// error taxonomy: validation (caller sent bad input), state (illegal
// transition), consistency (commit-time check failed) and storage
// (retryable infrastructure failure).
var (
	ErrNotFound    = errors.New("resource not found")
	ErrDuplicate   = errors.New("duplicate entry")
	ErrValidation  = errors.New("validation failed")
	ErrState       = errors.New("invalid state transition")
	ErrConsistency = errors.New("consistency check failed")
	ErrStorage     = errors.New("storage unavailable")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrState):
		Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case errors.Is(err, ErrConsistency):
		Problem(w, http.StatusUnprocessableEntity, "Consistency Check Failed", err.Error())
	case errors.Is(err, ErrStorage):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
