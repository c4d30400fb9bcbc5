package auth_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/pkg/auth"
)

var secret = []byte("test-secret")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIssueAndValidate(t *testing.T) {
	token, err := auth.Issue(secret, "user-1", auth.RoleClinicAdmin, time.Minute)
	require.NoError(t, err)

	claims, err := auth.Validate(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, string(auth.RoleClinicAdmin), claims.Role)
	assert.True(t, claims.HasRole())
	assert.True(t, claims.HasRole(auth.RoleCoordinator, auth.RoleClinicAdmin))
	assert.False(t, claims.HasRole(auth.RoleCoordinator))
}

func TestValidateRejects(t *testing.T) {
	expired, err := auth.Issue(secret, "user-1", auth.RoleClinicAdmin, -time.Minute)
	require.NoError(t, err)

	other, err := auth.Issue([]byte("other"), "user-1", auth.RoleClinicAdmin, time.Minute)
	require.NoError(t, err)

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		Role: string(auth.RoleClinicAdmin),
		Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(secret)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &auth.Claims{Type: auth.TokenTypeAccess}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, auth.ErrInvalidToken},
		{"wrong secret", other, auth.ErrInvalidToken},
		{"refresh token", refresh, auth.ErrTokenType},
		{"wrong algorithm", hs512, auth.ErrInvalidToken},
		{"garbage", "not.a.token", auth.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Validate(secret, tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func protected(roles ...auth.Role) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, claims.UserID())
	})
	return auth.Authenticate(secret, discard(), roles...)(next)
}

func TestAuthenticate(t *testing.T) {
	admin, err := auth.Issue(secret, "admin-1", auth.RoleClinicAdmin, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		roles  []auth.Role
		status int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + admin, nil, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", nil, http.StatusUnauthorized},
		{"valid token", "Bearer " + admin, nil, http.StatusOK},
		{"lowercase scheme", "bearer " + admin, nil, http.StatusOK},
		{"role accepted", "Bearer " + admin, []auth.Role{auth.RoleClinicAdmin}, http.StatusOK},
		{"role rejected", "Bearer " + admin, []auth.Role{auth.RoleCoordinator}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(tt.roles...).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			switch tt.status {
			case http.StatusOK:
				assert.Equal(t, "admin-1", rec.Body.String())
			case http.StatusUnauthorized:
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := auth.Require(discard(), auth.RoleCoordinator)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for role, want := range map[auth.Role]int{
		auth.RoleCoordinator: http.StatusNoContent,
		auth.RoleClinicAdmin: http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{Role: string(role)}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestConfig(t *testing.T) {
	t.Setenv("TEST_AUTH_SECRET", "from-env")

	cfg := &auth.Config{Secret: "file"}
	require.NoError(t, cfg.Finalize(&auth.Env{Secret: "TEST_AUTH_SECRET"}))
	assert.Equal(t, []byte("from-env"), cfg.SecretBytes())

	cfg.Merge(&auth.Config{Secret: "overlay"})
	assert.Equal(t, "overlay", cfg.Secret)

	empty := &auth.Config{}
	assert.ErrorContains(t, empty.Finalize(nil), "secret required")
}
