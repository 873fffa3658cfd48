package runs

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound      = errors.New("run not found")
	ErrDuplicate     = errors.New("run already exists")
	ErrNoFiles       = errors.New("at least one file is required")
	ErrFileTooLarge  = errors.New("upload exceeds maximum size")
	ErrInvalidFile   = errors.New("invalid file")
	ErrInvalidID     = errors.New("invalid run id")
	ErrInvalidFormat = errors.New("export format must be json or csv")
	ErrExecute       = errors.New("workflow execution failed")
)

// MapHTTPStatus maps run domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNoFiles),
		errors.Is(err, ErrInvalidFile),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
