// Package gatekeeper enforces authentication at the edge, ahead of route
// handlers.
//
// It classifies every request into one of four states and acts before the
// protected handler runs. The gatekeeper trusts the token signature only;
// directory cross-checks happen later in the resolver fast path, trading a
// small staleness window for latency.
package gatekeeper

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
	"github.com/evmarques/storefront.chat/internal/platform/requestctx"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/httpx"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/sessioncookie"
	"github.com/evmarques/storefront.chat/internal/services/identity/resolver"
	"github.com/evmarques/storefront.chat/internal/services/identity/token"
)

// State is the classification of one request.
type State string

const (
	StatePublicPassthrough        State = "PUBLIC_PASSTHROUGH"
	StateProtectedUnauthenticated State = "PROTECTED_UNAUTHENTICATED"
	StateProtectedVerified        State = "PROTECTED_VERIFIED"
	StateProtectedRejected        State = "PROTECTED_REJECTED"
)

// Redirect reason codes, machine-readable for the login surface.
const (
	ReasonAuthRequired   = "auth_required"
	ReasonSessionExpired = "session_expired"
	ReasonAccessDenied   = "access_denied"
)

// reasonParam marks a request as already redirected once. Its presence forces
// passthrough; treating it as protected again would redirect forever.
const reasonParam = "reason"

// Config wires the gatekeeper.
type Config struct {
	Codec *token.Codec
	// LoginPath is the login surface; always passthrough.
	LoginPath string
	// PublicPrefixes bypass authentication entirely.
	PublicPrefixes []string
	// APIPrefix selects JSON errors over browser redirects.
	APIPrefix string
	// ExchangeParam names the one-time exchange token query parameter; a
	// request carrying it is heading to the exchange endpoint and passes.
	ExchangeParam string
	// EmbedAncestors lists origins allowed to frame this service, on top of
	// 'self'. Set this to the chat platform's webview origins.
	EmbedAncestors []string
	// Cookie controls attributes on refreshed and cleared cookies.
	Cookie sessioncookie.Policy
}

// Gatekeeper is the edge middleware.
type Gatekeeper struct {
	cfg           Config
	frameAncestry string
}

// New creates a gatekeeper. Defaults: login path /login, exchange parameter
// exchange_token, API prefix /api/.
func New(cfg Config) *Gatekeeper {
	if strings.TrimSpace(cfg.LoginPath) == "" {
		cfg.LoginPath = "/login"
	}
	if strings.TrimSpace(cfg.ExchangeParam) == "" {
		cfg.ExchangeParam = "exchange_token"
	}
	if strings.TrimSpace(cfg.APIPrefix) == "" {
		cfg.APIPrefix = "/api/"
	}
	sources := append([]string{"'self'"}, cfg.EmbedAncestors...)
	return &Gatekeeper{
		cfg:           cfg,
		frameAncestry: "frame-ancestors " + strings.Join(sources, " "),
	}
}

// Classify reports the state a request lands in and, for verified requests,
// the carried claims.
func (g *Gatekeeper) Classify(r *http.Request) (State, token.Claims) {
	if g.isPublic(r) {
		return StatePublicPassthrough, token.Claims{}
	}
	raw, ok := credential(r)
	if !ok {
		return StateProtectedUnauthenticated, token.Claims{}
	}
	claims, err := g.cfg.Codec.Verify(raw)
	if err != nil {
		return StateProtectedRejected, token.Claims{}
	}
	return StateProtectedVerified, claims
}

// Guard wraps a handler with edge authentication.
func (g *Gatekeeper) Guard(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every response advertises the framing policy, so the embedded
		// webview can host public and protected surfaces alike.
		w.Header().Set("Content-Security-Policy", g.frameAncestry)

		// Identity headers are edge-to-origin only. Anything arriving from
		// outside is a spoof attempt and is dropped unconditionally.
		r.Header.Del(resolver.HeaderPrincipal)
		r.Header.Del(resolver.HeaderRole)
		r.Header.Del(resolver.HeaderStamp)

		if g.isPublic(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := credential(r)
		if !ok {
			g.challenge(w, r, ReasonAuthRequired, apperrors.CodeCredentialsMissing, false)
			return
		}

		claims, err := g.cfg.Codec.Verify(raw)
		if err != nil {
			reason := ReasonAuthRequired
			code := apperrors.CodeSignatureInvalid
			if errors.Is(err, token.ErrExpired) {
				reason = ReasonSessionExpired
				code = apperrors.CodeTemporalExpiry
			}
			g.challenge(w, r, reason, code, true)
			return
		}

		r.Header.Set(resolver.HeaderPrincipal, claims.Subject)
		r.Header.Set(resolver.HeaderRole, string(claims.Role))
		if claims.Stamp != "" {
			r.Header.Set(resolver.HeaderStamp, claims.Stamp)
		}
		sessioncookie.Write(w, r, raw, token.Lifetime(claims.Role, claims.TenantID), g.cfg.Cookie)

		ctx := requestctx.WithPrincipalID(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gatekeeper) isPublic(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return true
	}
	path := r.URL.Path
	if path == g.cfg.LoginPath {
		return true
	}
	query := r.URL.Query()
	if query.Has(reasonParam) {
		return true
	}
	if query.Has(g.cfg.ExchangeParam) {
		return true
	}
	for _, prefix := range g.cfg.PublicPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// challenge rejects a protected request: JSON for API routes, a 307 to the
// login surface for browser routes. clearCookie drops a stale credential so
// the browser stops replaying it.
func (g *Gatekeeper) challenge(w http.ResponseWriter, r *http.Request, reason string, code apperrors.Code, clearCookie bool) {
	if clearCookie {
		sessioncookie.Clear(w, r, g.cfg.Cookie)
	}
	if strings.HasPrefix(r.URL.Path, g.cfg.APIPrefix) {
		httpx.WriteError(w, code, "authentication required")
		return
	}
	target := g.cfg.LoginPath + "?" + url.Values{
		reasonParam: {reason},
		"next":      {r.URL.Path},
	}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func credential(r *http.Request) (string, bool) {
	if raw, ok := sessioncookie.Read(r); ok {
		return raw, true
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(authorization[len(prefix):])
	if raw == "" {
		return "", false
	}
	return raw, true
}
