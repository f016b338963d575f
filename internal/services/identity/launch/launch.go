// Package launch verifies mini-app launch payloads from the chat platform.
//
// A launch payload is the signed query string the embedded webview hands the
// client on startup. Verifying it is the only way a chat identity enters the
// platform, so Validate is deliberately a pure function with no I/O: every
// failure is an error variant, never a panic.
package launch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
)

// keyDomain is the fixed domain-separation literal the chat platform uses
// when deriving the payload signing key from a tenant's shared secret.
const keyDomain = "WebAppData"

// DefaultWindow is how old a launch payload may be before it is rejected.
const DefaultWindow = 24 * time.Hour

// ErrSecretMissing indicates no shared secret was configured for the tenant.
var ErrSecretMissing = apperrors.New(apperrors.CodeSecretMissing, "launch secret is not configured")

// ErrSignatureInvalid indicates the payload hash is absent or does not match.
var ErrSignatureInvalid = apperrors.New(apperrors.CodeSignatureInvalid, "launch signature mismatch")

// ErrStaleLaunch indicates the payload is older than the freshness window.
var ErrStaleLaunch = apperrors.New(apperrors.CodeStaleLaunch, "launch payload outside freshness window")

// Account is the principal descriptor embedded in a launch payload.
type Account struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName derives a human-readable name from the descriptor fields.
func (a Account) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
	if name != "" {
		return name
	}
	if username := strings.TrimSpace(a.Username); username != "" {
		return username
	}
	return fmt.Sprintf("user-%d", a.ID)
}

// Launch is a verified launch payload.
type Launch struct {
	Account  Account
	AuthDate time.Time
}

// Config controls payload verification.
type Config struct {
	// Secret is the tenant's shared secret with the chat platform.
	Secret string
	// Window bounds payload age; zero means DefaultWindow.
	Window time.Duration
	// Now is a clock hook for tests; nil means time.Now.
	Now func() time.Time
}

// Validate verifies a raw launch payload against the tenant secret.
//
// The payload is parsed as ordered key/value pairs; the hash entry is removed
// and the remaining pairs, sorted by key, form the canonical check string.
// The signature comparison is constant time.
func Validate(raw string, cfg Config) (Launch, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return Launch{}, ErrSecretMissing
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	values, err := url.ParseQuery(strings.TrimSpace(raw))
	if err != nil {
		return Launch{}, apperrors.Wrap(apperrors.CodeSignatureInvalid, "parse launch payload", err)
	}
	supplied := values.Get("hash")
	if supplied == "" {
		return Launch{}, ErrSignatureInvalid
	}
	values.Del("hash")

	if !hmac.Equal(signPayload(values, cfg.Secret), decodeHex(supplied)) {
		return Launch{}, ErrSignatureInvalid
	}

	authDate, err := parseAuthDate(values.Get("auth_date"))
	if err != nil {
		return Launch{}, err
	}
	if now().Sub(authDate) > window {
		return Launch{}, ErrStaleLaunch
	}

	var account Account
	if rawUser := values.Get("user"); rawUser != "" {
		if err := json.Unmarshal([]byte(rawUser), &account); err != nil {
			return Launch{}, apperrors.Wrap(apperrors.CodeSignatureInvalid, "parse launch user descriptor", err)
		}
	}
	if account.ID == 0 {
		return Launch{}, apperrors.New(apperrors.CodePrincipalEmptyChatID, "launch payload has no principal id")
	}

	return Launch{Account: account, AuthDate: authDate}, nil
}

// signPayload computes the expected signature for the remaining pairs.
func signPayload(values url.Values, secret string) []byte {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}
	checkString := strings.Join(lines, "\n")

	derived := hmac.New(sha256.New, []byte(keyDomain))
	derived.Write([]byte(secret))

	mac := hmac.New(sha256.New, derived.Sum(nil))
	mac.Write([]byte(checkString))
	return mac.Sum(nil)
}

// decodeHex returns the raw bytes of a hex signature, or nil when malformed.
// A nil result can never equal a real MAC, so malformed input fails closed.
func decodeHex(value string) []byte {
	decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return nil
	}
	return decoded
}

func parseAuthDate(raw string) (time.Time, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || seconds <= 0 {
		return time.Time{}, apperrors.New(apperrors.CodeStaleLaunch, "launch payload has no usable auth_date")
	}
	return time.Unix(seconds, 0).UTC(), nil
}
