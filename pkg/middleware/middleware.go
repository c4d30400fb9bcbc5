// Package middleware holds the HTTP middleware shared by modules: request
// IDs, panic recovery, CORS and request logging.
package middleware

import (
	"net/http"
	"slices"
)

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// System is an ordered middleware chain. The first middleware added is the
// outermost.
type System interface {
	Use(mw Middleware)
	Apply(handler http.Handler) http.Handler
}

type chain []Middleware

// New returns an empty chain.
func New() System {
	return &chain{}
}

func (c *chain) Use(mw Middleware) {
	*c = append(*c, mw)
}

func (c *chain) Apply(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(*c) {
		handler = mw(handler)
	}
	return handler
}
