// Package auth validates HS256 bearer tokens issued by the authentication
// service and enforces role requirements on HTTP routes.
package auth

import (
	"context"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies the kind of user a token was issued to.
type Role string

// Roles issued by the authentication service.
const (
	RoleClinicAdmin Role = "clinic_admin"
	RoleCoordinator Role = "gcf_coordinator"
)

// TokenTypeAccess is the only token type accepted on API routes.
const TokenTypeAccess = "access"

// Claims is the token payload: the subject carries the user id.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// HasRole reports whether the claims carry any of roles.
// An empty roles list accepts every role.
func (c *Claims) HasRole(roles ...Role) bool {
	if len(roles) == 0 {
		return true
	}
	return slices.Contains(roles, Role(c.Role))
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims stored by the authentication middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}
