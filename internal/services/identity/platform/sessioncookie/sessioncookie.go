// Package sessioncookie centralizes session cookie behavior for both ingress
// channels: the browser dashboard and the embedded mini-app webview.
package sessioncookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/evmarques/storefront.chat/internal/services/identity/platform/requestmeta"
)

// Name is the canonical session cookie name.
const Name = "sc_session"

// Policy controls cookie attributes for the deployment topology.
type Policy struct {
	// CrossOrigin selects SameSite=None plus the Partitioned attribute so the
	// cookie survives inside the chat platform's embedded webview, which
	// loads this origin third-party. Same-origin deployments keep Lax.
	CrossOrigin bool
	// Scheme feeds the Secure attribute decision.
	Scheme requestmeta.SchemePolicy
}

// Read returns the trimmed session cookie value when present.
func Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(Name)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Write sets the session cookie with a tier-appropriate lifetime.
func Write(w http.ResponseWriter, r *http.Request, token string, lifetime time.Duration, policy Policy) {
	if w == nil {
		return
	}
	http.SetCookie(w, cookie(r, strings.TrimSpace(token), int(lifetime/time.Second), policy))
}

// Clear expires the session cookie using matching attributes, so the browser
// actually drops it instead of keeping a shadowed copy.
func Clear(w http.ResponseWriter, r *http.Request, policy Policy) {
	if w == nil {
		return
	}
	http.SetCookie(w, cookie(r, "", -1, policy))
}

func cookie(r *http.Request, value string, maxAge int, policy Policy) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	secure := requestmeta.IsHTTPSWithPolicy(r, policy.Scheme)
	partitioned := false
	if policy.CrossOrigin {
		// SameSite=None requires Secure; the webview rejects it otherwise.
		sameSite = http.SameSiteNoneMode
		secure = true
		partitioned = true
	}
	return &http.Cookie{
		Name:        Name,
		Value:       value,
		Path:        "/",
		MaxAge:      maxAge,
		HttpOnly:    true,
		Secure:      secure,
		SameSite:    sameSite,
		Partitioned: partitioned,
	}
}
