// Package directory defines the identity records behind session resolution.
//
// The relational schema itself lives in storage/sqlite; this package owns the
// domain shapes and the narrow Store surface the resolver and handlers need.
package directory

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
)

// ErrNotFound indicates a missing directory record.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "directory record not found")

// User is a principal record. Created on first handshake, mutated on profile
// sync, soft-deleted only.
type User struct {
	ID          string
	ChatID      int64
	DisplayName string
	Role        rbac.Role
	Stamp       string
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TenantProfile is a merchant account. A principal owns at most one.
type TenantProfile struct {
	ID           string
	OwnerUserID  string
	PlanTier     string
	BillingEmail string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TeamMembership links a non-owner principal to a tenant with a tenant-scoped
// role. Resolution consults at most the first active membership.
type TeamMembership struct {
	ID        string
	TenantID  string
	UserID    string
	Role      rbac.Role
	Active    bool
	CreatedAt time.Time
}

// UpsertUserInput describes a handshake-derived principal sync.
type UpsertUserInput struct {
	ChatID      int64
	DisplayName string
}

// NormalizeUpsertUserInput validates and canonicalizes handshake input.
func NormalizeUpsertUserInput(input UpsertUserInput) (UpsertUserInput, error) {
	if input.ChatID <= 0 {
		return UpsertUserInput{}, apperrors.New(apperrors.CodePrincipalEmptyChatID, "chat id is required")
	}
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.DisplayName == "" {
		return UpsertUserInput{}, apperrors.New(apperrors.CodePrincipalEmptyDisplay, "display name is required")
	}
	return input, nil
}

// Store is the directory persistence surface.
//
// UpsertUserByChatID must be a single atomic statement keyed on the chat id
// uniqueness constraint, never lookup-then-insert: concurrent identical
// handshakes for one principal must converge on one row.
type Store interface {
	UpsertUserByChatID(ctx context.Context, input UpsertUserInput) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	TenantByOwner(ctx context.Context, userID string) (TenantProfile, error)
	FirstActiveMembership(ctx context.Context, userID string) (TeamMembership, error)
	RotateStamp(ctx context.Context, userID string) (string, error)
	CountUsers(ctx context.Context, since *time.Time) (int64, error)
}
