package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JaimeStill/aura/pkg/handlers"
)

// Authenticate returns middleware that requires a valid bearer token and,
// when roles are given, one of those roles. Invalid tokens yield 401 and
// missing roles yield 403.
func Authenticate(secret []byte, logger *slog.Logger, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				unauthorized(w, logger, ErrMissingToken)
				return
			}

			claims, err := Validate(secret, raw)
			if err != nil {
				unauthorized(w, logger, err)
				return
			}

			if !claims.HasRole(roles...) {
				handlers.RespondError(w, logger, http.StatusForbidden, ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Require returns middleware that rejects requests whose authenticated claims
// lack every one of roles. It must run after Authenticate.
func Require(logger *slog.Logger, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok {
				unauthorized(w, logger, ErrMissingToken)
				return
			}
			if !claims.HasRole(roles...) {
				handlers.RespondError(w, logger, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, logger *slog.Logger, err error) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	if errors.Is(err, ErrTokenType) || errors.Is(err, ErrMissingToken) {
		handlers.RespondError(w, logger, http.StatusUnauthorized, err)
		return
	}
	handlers.RespondError(w, logger, http.StatusUnauthorized, ErrInvalidToken)
}
