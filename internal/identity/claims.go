package identity

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of token claims the application cares about.
type Claims struct {
	Subject string
	Email   string
	Issuer  string
	Raw     jwt.MapClaims
}

type claimsContextKey struct{}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}
