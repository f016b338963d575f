// Package resolver turns request credentials into an authenticated session.
//
// Resolution is the single trust decision for a request: the token proves
// provenance, but the role, tenant binding, and revocation stamp are always
// re-derived from the directory. Handlers never read credentials themselves.
package resolver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
	"github.com/evmarques/storefront.chat/internal/platform/timeouts"
	"github.com/evmarques/storefront.chat/internal/services/identity/directory"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/sessioncookie"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
	"github.com/evmarques/storefront.chat/internal/services/identity/token"
)

// Internal identity headers. The gatekeeper strips these from every inbound
// request and re-injects them only after a full verification, so their
// presence is proof the edge already vouched for the principal.
const (
	HeaderPrincipal = "X-Identity-Principal"
	HeaderRole      = "X-Identity-Role"
	HeaderStamp     = "X-Identity-Stamp"
)

// ErrSessionExpired reports a structurally valid credential past its expiry.
// The edge maps this to a distinct re-authentication reason.
var ErrSessionExpired = token.ErrExpired

// Session is a fully resolved, directory-backed principal for one request.
type Session struct {
	PrincipalID string
	ChatID      int64
	DisplayName string
	Role        rbac.Role
	TenantID    string
	IsStaff     bool
	Stamp       string
}

// Can reports whether the session's role grants the action.
func (s *Session) Can(action rbac.Action) bool {
	if s == nil {
		return false
	}
	return rbac.Can(s.Role, action)
}

// requestSessionState memoizes resolution per request, so middleware and
// handlers asking independently trigger at most one directory lookup.
type requestSessionState struct {
	once    sync.Once
	session *Session
	err     error
}

type requestSessionStateKey struct{}

// WithState attaches a fresh memoization state to each request. Mount once,
// before anything that resolves.
func WithState(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), requestSessionStateKey{}, &requestSessionState{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func stateFromRequest(r *http.Request) *requestSessionState {
	if r == nil {
		return nil
	}
	state, _ := r.Context().Value(requestSessionStateKey{}).(*requestSessionState)
	return state
}

// Resolver resolves sessions against a token codec and the directory.
type Resolver struct {
	store         directory.Store
	codec         *token.Codec
	lookupTimeout time.Duration
	tracer        trace.Tracer
}

// New creates a resolver. The directory lookup timeout defaults to the
// platform-wide value.
func New(store directory.Store, codec *token.Codec) *Resolver {
	return &Resolver{
		store:         store,
		codec:         codec,
		lookupTimeout: timeouts.DirectoryLookup,
		tracer:        otel.Tracer("storefront.chat/identity/resolver"),
	}
}

// Resolve returns the authenticated session for the request.
//
// A nil session with a nil error means anonymous: absent, malformed, revoked,
// or foreign credentials all land here, indistinguishable to the caller. The
// error is non-nil only for an expired credential or an unreachable
// directory; both fail closed.
func (rs *Resolver) Resolve(r *http.Request) (*Session, error) {
	if state := stateFromRequest(r); state != nil {
		state.once.Do(func() {
			state.session, state.err = rs.resolveUncached(r)
		})
		return state.session, state.err
	}
	return rs.resolveUncached(r)
}

func (rs *Resolver) resolveUncached(r *http.Request) (*Session, error) {
	if rs == nil || rs.store == nil || r == nil {
		return nil, nil
	}

	ctx, span := rs.tracer.Start(r.Context(), "identity.resolve")
	defer span.End()

	session, err := rs.resolveCredentials(ctx, r)
	switch {
	case err != nil:
		span.SetAttributes(attribute.String("identity.outcome", "error"))
	case session == nil:
		span.SetAttributes(attribute.String("identity.outcome", "anonymous"))
	default:
		span.SetAttributes(
			attribute.String("identity.outcome", "authenticated"),
			attribute.String("identity.role", string(session.Role)),
		)
	}
	return session, err
}

func (rs *Resolver) resolveCredentials(ctx context.Context, r *http.Request) (*Session, error) {
	// Fast path: the edge already verified and vouched via internal headers.
	if principalID := strings.TrimSpace(r.Header.Get(HeaderPrincipal)); principalID != "" {
		return rs.sessionFromDirectory(ctx, principalID, strings.TrimSpace(r.Header.Get(HeaderStamp)), "")
	}

	raw, ok := sessioncookie.Read(r)
	if !ok {
		raw, ok = bearerToken(r)
	}
	if !ok {
		return nil, nil
	}

	claims, err := rs.codec.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrSessionExpired
		}
		return nil, nil
	}
	return rs.sessionFromDirectory(ctx, claims.Subject, claims.Stamp, claims.TenantID)
}

// sessionFromDirectory loads the principal record and re-derives authority
// from it. claimTenantID is the token's advisory tenant binding, used only
// when the directory offers nothing stronger.
func (rs *Resolver) sessionFromDirectory(ctx context.Context, principalID, claimStamp, claimTenantID string) (*Session, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, rs.lookupTimeout)
	defer cancel()

	user, err := rs.store.GetUser(lookupCtx, principalID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		log.Printf("resolve principal %s: directory lookup failed: %v", principalID, err)
		return nil, apperrors.Wrap(apperrors.CodeDirectoryUnavailable, "directory lookup failed", err)
	}
	if user.Deleted {
		return nil, nil
	}
	// Revocation: compared only when both sides carry a stamp, so sessions
	// minted before stamps existed keep working until natural expiry.
	if claimStamp != "" && user.Stamp != "" && claimStamp != user.Stamp {
		return nil, nil
	}

	session := &Session{
		PrincipalID: user.ID,
		ChatID:      user.ChatID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		IsStaff:     rbac.IsStaff(user.Role),
		Stamp:       user.Stamp,
	}
	tenantID, tenantRole, err := rs.resolveTenantBinding(lookupCtx, user)
	if err != nil {
		return nil, err
	}
	session.TenantID = tenantID
	if tenantRole != "" && session.Role == rbac.RoleUser {
		session.Role = tenantRole
		session.IsStaff = rbac.IsStaff(tenantRole)
	}
	if session.TenantID == "" {
		session.TenantID = strings.TrimSpace(claimTenantID)
	}
	return session, nil
}

// resolveTenantBinding picks the strongest tenant association: an owned
// tenant wins over team memberships, and the earliest active membership wins
// among those.
func (rs *Resolver) resolveTenantBinding(ctx context.Context, user directory.User) (string, rbac.Role, error) {
	tenant, err := rs.store.TenantByOwner(ctx, user.ID)
	switch {
	case err == nil:
		return tenant.ID, "", nil
	case !errors.Is(err, directory.ErrNotFound):
		log.Printf("resolve principal %s: tenant lookup failed: %v", user.ID, err)
		return "", "", apperrors.Wrap(apperrors.CodeDirectoryUnavailable, "directory lookup failed", err)
	}

	membership, err := rs.store.FirstActiveMembership(ctx, user.ID)
	switch {
	case err == nil:
		return membership.TenantID, membership.Role, nil
	case !errors.Is(err, directory.ErrNotFound):
		log.Printf("resolve principal %s: membership lookup failed: %v", user.ID, err)
		return "", "", apperrors.Wrap(apperrors.CodeDirectoryUnavailable, "directory lookup failed", err)
	}
	return "", "", nil
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	value := strings.TrimSpace(authorization[len(prefix):])
	if value == "" {
		return "", false
	}
	return value, true
}
