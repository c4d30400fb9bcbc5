package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/pkg/middleware"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestApplyOrder(t *testing.T) {
	var order []string
	trace := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	mw := middleware.New()
	mw.Use(trace("outer"))
	mw.Use(trace("inner"))

	h := mw.Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func corsConfig(t *testing.T, cfg middleware.CORSConfig) *middleware.CORSConfig {
	t.Helper()
	require.NoError(t, cfg.Finalize(nil))
	return &cfg
}

func TestCORS(t *testing.T) {
	clinic := corsConfig(t, middleware.CORSConfig{
		Enabled: true,
		Origins: []string{"https://clinic.example"},
	})

	tests := []struct {
		name       string
		cfg        *middleware.CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"disabled", corsConfig(t, middleware.CORSConfig{Origins: []string{"https://clinic.example"}}), http.MethodGet, "https://clinic.example", false, http.StatusOK, ""},
		{"allowed", clinic, http.MethodGet, "https://clinic.example", false, http.StatusOK, "https://clinic.example"},
		{"other origin", clinic, http.MethodGet, "https://elsewhere.example", false, http.StatusOK, ""},
		{"preflight", clinic, http.MethodOptions, "https://clinic.example", true, http.StatusNoContent, "https://clinic.example"},
		{"bare options", clinic, http.MethodOptions, "https://clinic.example", false, http.StatusOK, "https://clinic.example"},
		{"wildcard", corsConfig(t, middleware.CORSConfig{Enabled: true, Origins: []string{"*"}}), http.MethodGet, "https://any.example", false, http.StatusOK, "*"},
		{"wildcard credentials", corsConfig(t, middleware.CORSConfig{Enabled: true, Origins: []string{"*"}, AllowCredentials: true}), http.MethodGet, "https://any.example", false, http.StatusOK, "https://any.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/documents", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			middleware.CORS(tt.cfg)(http.HandlerFunc(ok)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	cfg := corsConfig(t, middleware.CORSConfig{
		Enabled:          true,
		Origins:          []string{"https://clinic.example"},
		AllowCredentials: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://clinic.example")
	rec := httptest.NewRecorder()
	middleware.CORS(cfg)(http.HandlerFunc(ok)).ServeHTTP(rec, req)

	h := rec.Header()
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", h.Get("Access-Control-Max-Age"))
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, middleware.RequestIDHeader, h.Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "Origin", h.Get("Vary"))
}

func TestCORSConfigEnv(t *testing.T) {
	t.Setenv("T_CORS_ENABLED", "true")
	t.Setenv("T_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("T_CORS_MAX_AGE", "600")

	cfg := middleware.CORSConfig{}
	require.NoError(t, cfg.Finalize(&middleware.CORSEnv{
		Enabled: "T_CORS_ENABLED",
		Origins: "T_CORS_ORIGINS",
		MaxAge:  "T_CORS_MAX_AGE",
	}))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins)
	assert.Equal(t, 600, cfg.MaxAge)
	assert.Contains(t, cfg.AllowedMethods, http.MethodPatch)
}

func TestCORSConfigMerge(t *testing.T) {
	base := middleware.CORSConfig{Enabled: true, Origins: []string{"https://a.example"}, MaxAge: 3600}
	base.Merge(&middleware.CORSConfig{Origins: []string{"https://b.example"}})

	assert.False(t, base.Enabled, "booleans always apply")
	assert.Equal(t, []string{"https://b.example"}, base.Origins)
	assert.Equal(t, 0, base.MaxAge)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "upstream-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-42", seen)
	assert.Equal(t, "upstream-42", rec.Header().Get(middleware.RequestIDHeader))
}

func TestLoggerAndRecover(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	mw := middleware.New()
	mw.Use(middleware.RequestID())
	mw.Use(middleware.Logger(logger))
	mw.Use(middleware.Recover(logger))

	h := mw.Apply(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("scanner jammed")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	out := logs.String()
	assert.Contains(t, out, "handler panic")
	assert.Contains(t, out, "scanner jammed")
	assert.Contains(t, out, "status=500")
	assert.Contains(t, out, "request_id=req-7")
}
