package module

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/JaimeStill/aura/pkg/middleware"
)

// Module serves every request under a single-level prefix. The prefix is
// stripped before the request reaches the inner handler, which runs behind
// the module's own middleware chain.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System
	composed   atomic.Pointer[http.Handler]
}

// New creates a Module for prefix (e.g. "/api"). It panics on an empty,
// relative or multi-level prefix.
func New(prefix string, router http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}
}

// Handler returns the inner router behind the middleware chain. The chain is
// composed once and rebuilt only after Use.
func (m *Module) Handler() http.Handler {
	if h := m.composed.Load(); h != nil {
		return *h
	}
	h := m.middleware.Apply(m.router)
	m.composed.Store(&h)
	return h
}

func (m *Module) Prefix() string {
	return m.prefix
}

// Serve dispatches req with the prefix removed from its path.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	path := strings.TrimPrefix(req.URL.Path, m.prefix)
	if path == "" {
		path = "/"
	}
	m.Handler().ServeHTTP(w, withPath(req, path))
}

// Use appends mw to the chain. Middleware added first runs outermost.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
	m.composed.Store(nil)
}

// withPath returns a shallow copy of req addressed to path.
func withPath(req *http.Request, path string) *http.Request {
	clone := req.Clone(req.Context())
	clone.URL.Path = path
	clone.URL.RawPath = ""
	return clone
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "" || prefix == "/":
		return fmt.Errorf("module prefix %q is empty", prefix)
	case prefix[0] != '/':
		return fmt.Errorf("module prefix %q must start with /", prefix)
	case strings.Contains(prefix[1:], "/"):
		return fmt.Errorf("module prefix %q must be a single path segment", prefix)
	}
	return nil
}
