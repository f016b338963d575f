// Package token signs and verifies compact session tokens.
//
// The codec proves provenance and freshness only. Authorization is always
// re-derived from the directory by the resolver; claims carried here are
// advisory apart from the subject and the revocation stamp.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evmarques/storefront.chat/internal/platform/config"
	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
)

const (
	// StaffLifetime is the expiry tier for platform staff and tenant-bound
	// principals. Short because these sessions can reach other people's data.
	StaffLifetime = 24 * time.Hour
	// MemberLifetime is the expiry tier for everyone else.
	MemberLifetime = 7 * 24 * time.Hour
	// leeway tolerates clock skew between issuer and verifier.
	leeway = 60 * time.Second
)

// ErrExpired indicates a structurally valid token past its expiry. Expiry is
// an expected, frequent condition; callers log it apart from real failures.
var ErrExpired = apperrors.New(apperrors.CodeTemporalExpiry, "session token expired")

// ErrInvalid indicates any other verification failure.
var ErrInvalid = apperrors.New(apperrors.CodeSignatureInvalid, "session token invalid")

// Claims is the verified content of a session token.
type Claims struct {
	Subject   string
	ChatID    string
	Role      rbac.Role
	TenantID  string
	IsStaff   bool
	Stamp     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// wireClaims is the JWT shape on the wire. The chat id is a string to avoid
// 64-bit precision loss in JSON consumers.
type wireClaims struct {
	jwt.RegisteredClaims
	ChatID   string `json:"chat_id,omitempty"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	IsStaff  bool   `json:"is_staff"`
	Stamp    string `json:"stamp,omitempty"`
}

// IssueInput describes the principal a token is minted for.
type IssueInput struct {
	Subject  string
	ChatID   int64
	Role     rbac.Role
	TenantID string
	Stamp    string
}

// Codec signs and verifies session tokens with one process-wide secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// codecEnv holds raw env values before post-parse validation.
type codecEnv struct {
	Secret string `env:"STOREFRONT_CHAT_SESSION_SECRET"`
}

// New creates a codec from an explicit secret.
func New(secret string, now func() time.Time) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, apperrors.New(apperrors.CodeSecretMissing, "session token secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: []byte(secret), now: now}, nil
}

// LoadCodecFromEnv creates a codec from STOREFRONT_CHAT_SESSION_SECRET.
func LoadCodecFromEnv(now func() time.Time) (*Codec, error) {
	var raw codecEnv
	if err := config.ParseEnv(&raw); err != nil {
		return nil, fmt.Errorf("parse token env: %w", err)
	}
	return New(raw.Secret, now)
}

// Lifetime selects the expiry tier for a role and tenant binding.
func Lifetime(role rbac.Role, tenantID string) time.Duration {
	if rbac.IsStaff(role) || strings.TrimSpace(tenantID) != "" {
		return StaffLifetime
	}
	return MemberLifetime
}

// Issue mints a signed token for the principal.
//
// The role is normalized exactly here; IsStaff comes from the rbac set, never
// from the caller. The revocation stamp is always embedded so every token
// minted by this codec participates in global logout.
func (c *Codec) Issue(input IssueInput) (string, Claims, error) {
	if c == nil || len(c.secret) == 0 {
		return "", Claims{}, apperrors.New(apperrors.CodeSecretMissing, "token codec is not configured")
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return "", Claims{}, apperrors.New(apperrors.CodeIdentityNotFound, "token subject is required")
	}

	role := rbac.Normalize(string(input.Role))
	tenantID := strings.TrimSpace(input.TenantID)
	issuedAt := c.now().UTC()
	expiresAt := issuedAt.Add(Lifetime(role, tenantID))

	claims := Claims{
		Subject:   subject,
		ChatID:    strconv.FormatInt(input.ChatID, 10),
		Role:      role,
		TenantID:  tenantID,
		IsStaff:   rbac.IsStaff(role),
		Stamp:     strings.TrimSpace(input.Stamp),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	wire := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		ChatID:   claims.ChatID,
		Role:     string(claims.Role),
		TenantID: claims.TenantID,
		IsStaff:  claims.IsStaff,
		Stamp:    claims.Stamp,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and expiry and returns the carried claims.
//
// Expired tokens return ErrExpired; every other failure returns ErrInvalid.
// Callers must treat any error as an anonymous session.
func (c *Codec) Verify(raw string) (Claims, error) {
	if c == nil || len(c.secret) == 0 {
		return Claims{}, ErrInvalid
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialsMissing, "session token is empty")
	}

	var wire wireClaims
	_, err := jwt.ParseWithClaims(raw, &wire, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	claims := Claims{
		Subject:  strings.TrimSpace(wire.Subject),
		ChatID:   wire.ChatID,
		Role:     rbac.Normalize(wire.Role),
		TenantID: strings.TrimSpace(wire.TenantID),
		IsStaff:  wire.IsStaff,
		Stamp:    strings.TrimSpace(wire.Stamp),
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time.UTC()
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time.UTC()
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalid
	}
	return claims, nil
}
