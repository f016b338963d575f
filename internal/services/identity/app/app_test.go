package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evmarques/storefront.chat/internal/services/identity/directory"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/sessioncookie"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
	"github.com/evmarques/storefront.chat/internal/services/identity/token"
)

const testLaunchSecret = "launch-shared-secret"
const testSessionSecret = "session-signing-secret"

type memoryStore struct {
	mu          sync.Mutex
	seq         int
	users       map[string]directory.User
	byChat      map[int64]string
	tenants     map[string]directory.TenantProfile
	memberships map[string]directory.TeamMembership
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       map[string]directory.User{},
		byChat:      map[int64]string{},
		tenants:     map[string]directory.TenantProfile{},
		memberships: map[string]directory.TeamMembership{},
	}
}

func (s *memoryStore) UpsertUserByChatID(_ context.Context, input directory.UpsertUserInput) (directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byChat[input.ChatID]; ok {
		user := s.users[id]
		user.DisplayName = input.DisplayName
		s.users[id] = user
		return user, nil
	}
	s.seq++
	user := directory.User{
		ID:          fmt.Sprintf("u-%d", s.seq),
		ChatID:      input.ChatID,
		DisplayName: input.DisplayName,
		Role:        rbac.RoleUser,
		Stamp:       fmt.Sprintf("stamp-%d", s.seq),
	}
	s.users[user.ID] = user
	s.byChat[input.ChatID] = user.ID
	return user, nil
}

func (s *memoryStore) GetUser(_ context.Context, userID string) (directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return user, nil
}

func (s *memoryStore) TenantByOwner(_ context.Context, userID string) (directory.TenantProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[userID]
	if !ok {
		return directory.TenantProfile{}, directory.ErrNotFound
	}
	return tenant, nil
}

func (s *memoryStore) FirstActiveMembership(_ context.Context, userID string) (directory.TeamMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	membership, ok := s.memberships[userID]
	if !ok {
		return directory.TeamMembership{}, directory.ErrNotFound
	}
	return membership, nil
}

func (s *memoryStore) RotateStamp(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return "", directory.ErrNotFound
	}
	s.seq++
	user.Stamp = fmt.Sprintf("stamp-%d", s.seq)
	s.users[userID] = user
	return user.Stamp, nil
}

func (s *memoryStore) CountUsers(_ context.Context, _ *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *memoryStore) setRole(userID string, role rbac.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.Role = role
	s.users[userID] = user
}

func newTestServer(t *testing.T, store directory.Store) *Server {
	t.Helper()
	codec, err := token.New(testSessionSecret, time.Now)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	server, err := NewServer(Config{
		Addr:         ":0",
		LaunchSecret: testLaunchSecret,
		Store:        store,
		Codec:        codec,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

// signLaunchPayload builds a correctly signed handshake payload.
func signLaunchPayload(t *testing.T, secret string, pairs map[string]string) string {
	t.Helper()
	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+pairs[key])
	}

	derived := hmac.New(sha256.New, []byte("WebAppData"))
	derived.Write([]byte(secret))
	mac := hmac.New(sha256.New, derived.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))

	values := url.Values{}
	for key, value := range pairs {
		values.Set(key, value)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func launchPayload(t *testing.T, chatID int64, age time.Duration) string {
	t.Helper()
	return signLaunchPayload(t, testLaunchSecret, map[string]string{
		"auth_date": fmt.Sprintf("%d", time.Now().Add(-age).Unix()),
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"Ada","last_name":"Ray"}`, chatID),
	})
}

func doLaunch(t *testing.T, server *Server, chatID int64) (launchResponse, []*http.Cookie) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://storefront.test/auth/launch", strings.NewReader(launchPayload(t, chatID, time.Minute)))
	server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("launch: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp launchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode launch response: %v", err)
	}
	return resp, w.Result().Cookies()
}

func TestLaunchExchangeIssuesSession(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)

	resp, cookies := doLaunch(t, server, 42)
	if resp.Token == "" {
		t.Fatal("expected token in response")
	}
	if resp.User.Role != "user" || resp.User.IsStaff {
		t.Fatalf("unexpected user payload %+v", resp.User)
	}
	if resp.User.ChatID != "42" {
		t.Fatalf("expected chat id serialized as string, got %q", resp.User.ChatID)
	}
	if resp.User.DisplayName != "Ada Ray" {
		t.Fatalf("unexpected display name %q", resp.User.DisplayName)
	}
	if len(cookies) != 1 || cookies[0].Name != sessioncookie.Name {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
	if cookies[0].MaxAge != int(token.MemberLifetime.Seconds()) {
		t.Fatalf("expected member tier cookie, got %d", cookies[0].MaxAge)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("expected HttpOnly cookie")
	}
}

func TestLaunchRejectsStalePayload(t *testing.T) {
	server := newTestServer(t, newMemoryStore())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://storefront.test/auth/launch", strings.NewReader(launchPayload(t, 42, 25*time.Hour)))
	server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "STALE_LAUNCH") {
		t.Fatalf("expected STALE_LAUNCH, got %s", w.Body.String())
	}
}

func TestLaunchRejectsTamperedHash(t *testing.T) {
	server := newTestServer(t, newMemoryStore())

	payload := launchPayload(t, 42, time.Minute)
	tampered := strings.Replace(payload, "hash=", "hash=0", 1)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://storefront.test/auth/launch", strings.NewReader(tampered))
	server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "SIGNATURE_INVALID") {
		t.Fatalf("expected SIGNATURE_INVALID, got %s", w.Body.String())
	}
}

func TestSessionEndpointReturnsResolvedSession(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)
	resp, _ := doLaunch(t, server, 42)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://storefront.test/api/session", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var payload userPayload
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if payload.ID != resp.User.ID || payload.ChatID != "42" {
		t.Fatalf("unexpected session payload %+v", payload)
	}
}

func TestSessionWithoutCredential(t *testing.T) {
	server := newTestServer(t, newMemoryStore())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "http://storefront.test/api/session", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "CREDENTIALS_MISSING") {
		t.Fatalf("expected CREDENTIALS_MISSING, got %s", w.Body.String())
	}
}

func TestExpiredCookieRedirectsToLogin(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)
	resp, _ := doLaunch(t, server, 42)

	expiredCodec, err := token.New(testSessionSecret, func() time.Time {
		return time.Now().Add(-8 * 24 * time.Hour)
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	expired, _, err := expiredCodec.Issue(token.IssueInput{Subject: resp.User.ID, ChatID: 42})
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://storefront.test/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: expired})
	server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", w.Code)
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Path != "/login" || location.Query().Get("reason") != "session_expired" {
		t.Fatalf("unexpected redirect %q", w.Header().Get("Location"))
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected cleared cookie, got %+v", cookies)
	}
}

func TestGlobalLogoutInvalidatesOutstandingTokens(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)
	resp, _ := doLaunch(t, server, 42)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://storefront.test/auth/logout?scope=everywhere", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", w.Code)
	}

	// The unexpired token must now fail resolution.
	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "http://storefront.test/api/session", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after rotation, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestLocalLogoutKeepsOtherSessions(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)
	resp, _ := doLaunch(t, server, 42)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://storefront.test/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "http://storefront.test/api/session", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected token still valid after local logout, got %d", w.Code)
	}
}

func TestDashboardDeniedForPlainUser(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)
	resp, _ := doLaunch(t, server, 42)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://storefront.test/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)

	// Browser routes redirect with access_denied; API routes get a 403.
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d body=%s", w.Code, w.Body.String())
	}
	location, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Path != "/login" || location.Query().Get("reason") != "access_denied" {
		t.Fatalf("unexpected redirect %q", w.Header().Get("Location"))
	}
}

func TestAdminStatsRequiresPlatformSettings(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)
	resp, _ := doLaunch(t, server, 42)

	// Operators can use the dashboard but never platform administration.
	store.setRole(resp.User.ID, rbac.RoleTenantOperator)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://storefront.test/api/admin/stats", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", w.Code)
	}

	store.setRole(resp.User.ID, rbac.RolePlatformManager)
	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "http://storefront.test/api/admin/stats", nil)
	r.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: resp.Token})
	server.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for manager, got %d body=%s", w.Code, w.Body.String())
	}
	var stats statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Users != 1 {
		t.Fatalf("expected 1 user, got %d", stats.Users)
	}
}

func TestOperatorLaunchCarriesTenantBinding(t *testing.T) {
	store := newMemoryStore()
	server := newTestServer(t, store)

	// Seed the operator and their tenant before the handshake.
	first, _ := doLaunch(t, server, 42)
	store.setRole(first.User.ID, rbac.RoleTenantOperator)
	store.tenants[first.User.ID] = directory.TenantProfile{ID: "t-1", OwnerUserID: first.User.ID}

	resp, cookies := doLaunch(t, server, 42)
	if resp.User.TenantID != "t-1" {
		t.Fatalf("expected tenant binding, got %+v", resp.User)
	}
	// Tenant-bound sessions take the short expiry tier.
	if cookies[0].MaxAge != int(token.StaffLifetime.Seconds()) {
		t.Fatalf("expected staff tier cookie for tenant-bound session, got %d", cookies[0].MaxAge)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, newMemoryStore())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "http://storefront.test/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestLoginEchoesReason(t *testing.T) {
	server := newTestServer(t, newMemoryStore())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "http://storefront.test/login?reason=auth_required&next=%2Fdashboard", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "auth_required") {
		t.Fatalf("expected reason echoed, got %s", w.Body.String())
	}
}
