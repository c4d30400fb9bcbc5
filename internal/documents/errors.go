package documents

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/aura/internal/ledger"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicate    = errors.New("document already exists")
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
	ErrInvalidFile  = errors.New("invalid file")
	ErrInvalidID    = errors.New("invalid document id")
)

// MapHTTPStatus maps document errors to a response status. Anything else is
// mapped as a ledger error.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	default:
		return ledger.MapHTTPStatus(err)
	}
}
