package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
	"github.com/evmarques/storefront.chat/internal/services/identity/directory"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
)

// PutTenantProfile persists a tenant profile record.
func (s *Store) PutTenantProfile(ctx context.Context, profile directory.TenantProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(profile.OwnerUserID) == "" {
		return apperrors.New(apperrors.CodeTenantEmptyOwner, "tenant owner is required")
	}

	now := toMillis(s.now())
	createdAt := now
	if !profile.CreatedAt.IsZero() {
		createdAt = toMillis(profile.CreatedAt)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tenant_profiles (
	id, owner_user_id, plan_tier, billing_email, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	plan_tier = excluded.plan_tier,
	billing_email = excluded.billing_email,
	updated_at = excluded.updated_at
`,
		strings.TrimSpace(profile.ID),
		strings.TrimSpace(profile.OwnerUserID),
		strings.TrimSpace(profile.PlanTier),
		strings.TrimSpace(profile.BillingEmail),
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("put tenant profile: %w", err)
	}
	return nil
}

// TenantByOwner fetches the tenant profile owned by a principal.
func (s *Store) TenantByOwner(ctx context.Context, userID string) (directory.TenantProfile, error) {
	if err := ctx.Err(); err != nil {
		return directory.TenantProfile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return directory.TenantProfile{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return directory.TenantProfile{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner_user_id, plan_tier, billing_email, created_at, updated_at
FROM tenant_profiles
WHERE owner_user_id = ?
`, userID)

	var profile directory.TenantProfile
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(
		&profile.ID,
		&profile.OwnerUserID,
		&profile.PlanTier,
		&profile.BillingEmail,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.TenantProfile{}, directory.ErrNotFound
		}
		return directory.TenantProfile{}, fmt.Errorf("tenant by owner: %w", err)
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

// PutTeamMembership persists a membership linking a principal to a tenant.
func (s *Store) PutTeamMembership(ctx context.Context, membership directory.TeamMembership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(membership.ID) == "" {
		return fmt.Errorf("membership id is required")
	}
	if strings.TrimSpace(membership.TenantID) == "" {
		return apperrors.New(apperrors.CodeMembershipEmptyTenantID, "membership tenant id is required")
	}
	if strings.TrimSpace(membership.UserID) == "" {
		return fmt.Errorf("membership user id is required")
	}

	createdAt := toMillis(s.now())
	if !membership.CreatedAt.IsZero() {
		createdAt = toMillis(membership.CreatedAt)
	}
	active := 0
	if membership.Active {
		active = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO team_memberships (
	id, tenant_id, user_id, role, active, created_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(tenant_id, user_id) DO UPDATE SET
	role = excluded.role,
	active = excluded.active
`,
		strings.TrimSpace(membership.ID),
		strings.TrimSpace(membership.TenantID),
		strings.TrimSpace(membership.UserID),
		string(rbac.Normalize(string(membership.Role))),
		active,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("put team membership: %w", err)
	}
	return nil
}

// FirstActiveMembership returns the oldest active membership for a principal.
// Resolution never consults more than this one record.
func (s *Store) FirstActiveMembership(ctx context.Context, userID string) (directory.TeamMembership, error) {
	if err := ctx.Err(); err != nil {
		return directory.TeamMembership{}, err
	}
	if s == nil || s.sqlDB == nil {
		return directory.TeamMembership{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return directory.TeamMembership{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, tenant_id, user_id, role, active, created_at
FROM team_memberships
WHERE user_id = ? AND active = 1
ORDER BY created_at ASC, id ASC
LIMIT 1
`, userID)

	var membership directory.TeamMembership
	var role string
	var active int64
	var createdAt int64
	if err := row.Scan(
		&membership.ID,
		&membership.TenantID,
		&membership.UserID,
		&role,
		&active,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.TeamMembership{}, directory.ErrNotFound
		}
		return directory.TeamMembership{}, fmt.Errorf("first active membership: %w", err)
	}
	membership.Role = rbac.Normalize(role)
	membership.Active = active != 0
	membership.CreatedAt = fromMillis(createdAt)
	return membership, nil
}
