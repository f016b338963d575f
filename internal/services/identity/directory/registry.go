package directory

import (
	"context"
	"strings"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
)

// Registry is the global revocation surface.
//
// Rotating a principal's stamp is the sole "log out everywhere" primitive:
// there is no token deny-list. Rotate is synchronous; once it returns, every
// resolution carrying the old stamp fails.
type Registry struct {
	store Store
}

// NewRegistry creates a revocation registry over a directory store.
func NewRegistry(store Store) Registry {
	return Registry{store: store}
}

// Rotate replaces the principal's stored stamp and returns the new value.
func (r Registry) Rotate(ctx context.Context, principalID string) (string, error) {
	if r.store == nil {
		return "", apperrors.New(apperrors.CodeDirectoryUnavailable, "revocation registry is not configured")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", apperrors.New(apperrors.CodeIdentityNotFound, "principal id is required")
	}
	return r.store.RotateStamp(ctx, principalID)
}
