package storage

import (
	"errors"
	"net/http"
)

// Errors returned by every System implementation.
var (
	ErrNotFound   = errors.New("object not found")
	ErrEmptyKey   = errors.New("storage key is empty")
	ErrInvalidKey = errors.New("storage key escapes its prefix")
)

// MapHTTPStatus returns 404 for a missing object, 400 for a rejected key and
// 500 for anything else.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
