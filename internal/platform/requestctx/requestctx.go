// Package requestctx carries authenticated identity through request contexts.
package requestctx

import "context"

// principalIDContextKey is the context key for the authenticated principal.
type principalIDContextKey struct{}

// WithPrincipalID stores a principal identifier in context.
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalIDContextKey{}, principalID)
}

// PrincipalIDFromContext returns the principal identifier stored in context.
func PrincipalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(principalIDContextKey{}).(string)
	return value
}
