package ledger

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidService = errors.New("invalid service name")
)

// MapHTTPStatus maps ledger errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidService):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
