package module_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/pkg/module"
)

func echoPath(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(r.URL.Path))
}

func TestNewPrefixValidation(t *testing.T) {
	for _, prefix := range []string{"/api", "/scalar"} {
		assert.NotPanics(t, func() { module.New(prefix, http.NewServeMux()) }, prefix)
	}
	for _, prefix := range []string{"", "/", "api", "/api/v1"} {
		assert.Panics(t, func() { module.New(prefix, http.NewServeMux()) }, prefix)
	}
}

func TestServeStripsPrefix(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}", echoPath)
	mux.HandleFunc("GET /{$}", echoPath)
	m := module.New("/api", mux)

	tests := []struct {
		path string
		want string
	}{
		{"/api/documents/42", "/documents/42"},
		{"/api", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			m.Serve(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
			assert.Equal(t, tt.path, req.URL.Path, "caller request is not mutated")
		})
	}
}

func TestModuleMiddlewareWrapsRouter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Stage")))
	})

	m := module.New("/api", mux)
	m.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Stage", "parsing")
			next.ServeHTTP(w, r)
		})
	})

	rec := httptest.NewRecorder()
	m.Serve(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, "parsing", rec.Body.String())
}

func TestUseAfterServeRebuildsChain(t *testing.T) {
	var calls []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	m := module.New("/api", http.NotFoundHandler())
	m.Use(tag("outer"))
	m.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, []string{"outer"}, calls)

	calls = nil
	m.Use(tag("inner"))
	m.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestRouterDispatch(t *testing.T) {
	api := http.NewServeMux()
	api.HandleFunc("GET /documents", echoPath)

	r := module.NewRouter()
	r.Mount(module.New("/api", api))
	r.HandleNative("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("native"))
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"module", "/api/documents", http.StatusOK, "/documents"},
		{"trailing slash", "/api/documents/", http.StatusOK, "/documents"},
		{"native", "/health", http.StatusOK, "native"},
		{"native trailing slash", "/health/", http.StatusOK, "native"},
		{"prefix lookalike", "/apix/documents", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRouterDuplicateMountPanics(t *testing.T) {
	r := module.NewRouter()
	r.Mount(module.New("/api", http.NewServeMux()))

	assert.Panics(t, func() { r.Mount(module.New("/api", http.NewServeMux())) })
}
