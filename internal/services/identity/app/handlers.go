package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
	"github.com/evmarques/storefront.chat/internal/platform/timeouts"
	"github.com/evmarques/storefront.chat/internal/services/identity/directory"
	"github.com/evmarques/storefront.chat/internal/services/identity/gatekeeper"
	"github.com/evmarques/storefront.chat/internal/services/identity/launch"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/httpx"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/sessioncookie"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
	"github.com/evmarques/storefront.chat/internal/services/identity/resolver"
	"github.com/evmarques/storefront.chat/internal/services/identity/token"
)

// maxLaunchPayload bounds the handshake request body.
const maxLaunchPayload = 64 << 10

// userPayload is the principal shape returned to clients.
type userPayload struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	TenantID    string `json:"tenantId,omitempty"`
	IsStaff     bool   `json:"isStaff"`
}

type launchResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

// handleLaunch exchanges a verified mini-app launch payload for a session.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLaunchPayload))
	if err != nil {
		httpx.WriteError(w, apperrors.CodeSignatureInvalid, "unreadable launch payload")
		return
	}

	verified, err := launch.Validate(string(body), launch.Config{
		Secret: s.launchSecret,
		Now:    s.now,
	})
	if err != nil {
		log.Printf("launch rejected: %v", err)
		httpx.WriteError(w, apperrors.CodeOf(err), "launch verification failed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.DirectoryLookup)
	defer cancel()

	input, err := directory.NormalizeUpsertUserInput(directory.UpsertUserInput{
		ChatID:      verified.Account.ID,
		DisplayName: verified.Account.DisplayName(),
	})
	if err != nil {
		httpx.WriteError(w, apperrors.CodeOf(err), "launch principal is incomplete")
		return
	}
	user, err := s.store.UpsertUserByChatID(ctx, input)
	if err != nil {
		log.Printf("launch upsert chat id %d: %v", input.ChatID, err)
		httpx.WriteError(w, apperrors.CodeDirectoryUnavailable, "directory unavailable")
		return
	}

	role, tenantID, err := s.effectiveBinding(ctx, user)
	if err != nil {
		log.Printf("launch binding for %s: %v", user.ID, err)
		httpx.WriteError(w, apperrors.CodeDirectoryUnavailable, "directory unavailable")
		return
	}

	signed, claims, err := s.codec.Issue(token.IssueInput{
		Subject:  user.ID,
		ChatID:   user.ChatID,
		Role:     role,
		TenantID: tenantID,
		Stamp:    user.Stamp,
	})
	if err != nil {
		log.Printf("launch issue for %s: %v", user.ID, err)
		httpx.WriteError(w, apperrors.CodeOf(err), "session could not be established")
		return
	}

	sessioncookie.Write(w, r, signed, token.Lifetime(claims.Role, claims.TenantID), s.cookies)
	httpx.WriteJSON(w, http.StatusOK, launchResponse{
		Token: signed,
		User: userPayload{
			ID:          user.ID,
			ChatID:      claims.ChatID,
			DisplayName: user.DisplayName,
			Role:        string(claims.Role),
			TenantID:    claims.TenantID,
			IsStaff:     claims.IsStaff,
		},
	})
}

// effectiveBinding picks the role and tenant a fresh session is issued with:
// an owned tenant wins, then the earliest active membership, which also
// elevates a plain user to its tenant-scoped role.
func (s *Server) effectiveBinding(ctx context.Context, user directory.User) (rbac.Role, string, error) {
	tenant, err := s.store.TenantByOwner(ctx, user.ID)
	switch {
	case err == nil:
		return user.Role, tenant.ID, nil
	case !errors.Is(err, directory.ErrNotFound):
		return "", "", err
	}

	membership, err := s.store.FirstActiveMembership(ctx, user.ID)
	switch {
	case err == nil:
		role := user.Role
		if role == rbac.RoleUser {
			role = membership.Role
		}
		return role, membership.TenantID, nil
	case !errors.Is(err, directory.ErrNotFound):
		return "", "", err
	}
	return user.Role, "", nil
}

// handleSession returns the resolved session, or a structured 401.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.resolver.Resolve(r)
	switch {
	case errors.Is(err, resolver.ErrSessionExpired):
		httpx.WriteError(w, apperrors.CodeTemporalExpiry, "session expired")
		return
	case err != nil:
		httpx.WriteError(w, apperrors.CodeOf(err), "session could not be resolved")
		return
	case session == nil:
		httpx.WriteError(w, apperrors.CodeCredentialsMissing, "no active session")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userPayload{
		ID:          session.PrincipalID,
		ChatID:      strconv.FormatInt(session.ChatID, 10),
		DisplayName: session.DisplayName,
		Role:        string(session.Role),
		TenantID:    session.TenantID,
		IsStaff:     session.IsStaff,
	})
}

// handleLogout clears the cookie; scope=everywhere also rotates the
// principal's revocation stamp, killing every outstanding token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.URL.Query().Get("scope"), "everywhere") {
		session, err := s.resolver.Resolve(r)
		if err == nil && session != nil {
			if _, err := s.registry.Rotate(r.Context(), session.PrincipalID); err != nil {
				log.Printf("logout rotate for %s: %v", session.PrincipalID, err)
				httpx.WriteError(w, apperrors.CodeDirectoryUnavailable, "global logout failed")
				return
			}
		}
	}
	sessioncookie.Clear(w, r, s.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// requireAction enforces an RBAC action on an already-gatekept route.
func (s *Server) requireAction(action rbac.Action, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.resolver.Resolve(r)
		if err != nil || session == nil {
			httpx.WriteError(w, apperrors.CodeCredentialsMissing, "authentication required")
			return
		}
		if !session.Can(action) {
			s.denyInsufficient(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireDashboard admits platform staff plus tenant operators and team
// members.
func (s *Server) requireDashboard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.resolver.Resolve(r)
		if err != nil || session == nil {
			httpx.WriteError(w, apperrors.CodeCredentialsMissing, "authentication required")
			return
		}
		if !rbac.CanUseDashboard(session.Role) {
			s.denyInsufficient(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// denyInsufficient rejects an authenticated-but-insufficient principal: a
// structured 403 for API routes, a redirect carrying access_denied for
// browser routes.
func (s *Server) denyInsufficient(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httpx.WriteError(w, apperrors.CodeInsufficientRole, "role does not allow this action")
		return
	}
	target := "/login?" + url.Values{
		"reason": {gatekeeper.ReasonAccessDenied},
		"next":   {r.URL.Path},
	}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

type statsResponse struct {
	Users int64  `json:"users"`
	Since string `json:"since,omitempty"`
}

// handleStats reports directory growth for platform operators.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	rawSince := strings.TrimSpace(r.URL.Query().Get("since"))
	if rawSince != "" {
		parsed, err := time.Parse(time.RFC3339, rawSince)
		if err != nil {
			httpx.WriteError(w, apperrors.CodeInvalidArgument, "since must be RFC 3339")
			return
		}
		since = &parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.DirectoryLookup)
	defer cancel()
	count, err := s.store.CountUsers(ctx, since)
	if err != nil {
		log.Printf("count users: %v", err)
		httpx.WriteError(w, apperrors.CodeDirectoryUnavailable, "directory unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statsResponse{Users: count, Since: rawSince})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"surface": "dashboard"})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"surface": "admin"})
}

// handleLogin is the re-authentication surface redirects land on. It echoes
// the machine-readable reason so the client can render the right prompt.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"reason": r.URL.Query().Get("reason"),
		"next":   r.URL.Query().Get("next"),
	})
}
