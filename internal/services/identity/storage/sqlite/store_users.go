package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evmarques/storefront.chat/internal/platform/id"
	"github.com/evmarques/storefront.chat/internal/services/identity/directory"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
)

func defaultNewID() (string, error) {
	return id.NewID()
}

// UpsertUserByChatID creates or refreshes a principal keyed on the chat id.
//
// The whole upsert is one statement riding the chat_id uniqueness constraint,
// so concurrent identical handshakes converge on a single row. Role, stamp,
// and soft-delete state survive the refresh; only the display name and
// updated_at move.
func (s *Store) UpsertUserByChatID(ctx context.Context, input directory.UpsertUserInput) (directory.User, error) {
	if err := ctx.Err(); err != nil {
		return directory.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return directory.User{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := directory.NormalizeUpsertUserInput(input)
	if err != nil {
		return directory.User{}, err
	}

	userID, err := s.newID()
	if err != nil {
		return directory.User{}, fmt.Errorf("generate user id: %w", err)
	}
	stamp, err := id.NewStamp()
	if err != nil {
		return directory.User{}, fmt.Errorf("generate stamp: %w", err)
	}
	now := toMillis(s.now())

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO users (
	id, chat_id, display_name, role, stamp, deleted, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(chat_id) DO UPDATE SET
	display_name = excluded.display_name,
	updated_at = excluded.updated_at
`,
		userID,
		normalized.ChatID,
		normalized.DisplayName,
		string(rbac.RoleUser),
		stamp,
		now,
		now,
	)
	if err != nil {
		return directory.User{}, fmt.Errorf("upsert user: %w", err)
	}

	return s.userByChatID(ctx, normalized.ChatID)
}

// GetUser fetches a principal record by id.
func (s *Store) GetUser(ctx context.Context, userID string) (directory.User, error) {
	if err := ctx.Err(); err != nil {
		return directory.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return directory.User{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return directory.User{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, chat_id, display_name, role, stamp, deleted, created_at, updated_at
FROM users
WHERE id = ?
`, userID)
	return scanUser(row)
}

func (s *Store) userByChatID(ctx context.Context, chatID int64) (directory.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, chat_id, display_name, role, stamp, deleted, created_at, updated_at
FROM users
WHERE chat_id = ?
`, chatID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (directory.User, error) {
	var user directory.User
	var role string
	var deleted int64
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(
		&user.ID,
		&user.ChatID,
		&user.DisplayName,
		&role,
		&user.Stamp,
		&deleted,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.User{}, directory.ErrNotFound
		}
		return directory.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.Role = rbac.Normalize(role)
	user.Deleted = deleted != 0
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// RotateStamp replaces the principal's revocation stamp.
//
// The update commits before RotateStamp returns, so a caller may assume every
// subsequent resolution carrying the old stamp fails.
func (s *Store) RotateStamp(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	stamp, err := id.NewStamp()
	if err != nil {
		return "", fmt.Errorf("generate stamp: %w", err)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET stamp = ?, updated_at = ? WHERE id = ?
`, stamp, toMillis(s.now()), userID)
	if err != nil {
		return "", fmt.Errorf("rotate stamp: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rotate stamp result: %w", err)
	}
	if affected == 0 {
		return "", directory.ErrNotFound
	}
	return stamp, nil
}

// SetUserRole updates a principal's role. Admin tooling only; session tokens
// pick the change up on the next resolution.
func (s *Store) SetUserRole(ctx context.Context, userID string, role rbac.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET role = ?, updated_at = ? WHERE id = ?
`, string(rbac.Normalize(string(role))), toMillis(s.now()), userID)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user role result: %w", err)
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// SoftDeleteUser marks a principal deleted without removing the row.
func (s *Store) SoftDeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET deleted = 1, updated_at = ? WHERE id = ?
`, toMillis(s.now()), userID)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete user result: %w", err)
	}
	if affected == 0 {
		return directory.ErrNotFound
	}
	return nil
}

// CountUsers reports how many principals exist, optionally since a cutoff.
func (s *Store) CountUsers(ctx context.Context, since *time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var cutoff any
	if since != nil {
		cutoff = toMillis(*since)
	}
	var count int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM users
WHERE (?1 IS NULL OR created_at >= ?1)
`, cutoff)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
