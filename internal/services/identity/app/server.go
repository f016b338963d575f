// Package app hosts the identity HTTP surface: handshake exchange, session
// introspection, logout, and the gatekeeper-guarded route tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/evmarques/storefront.chat/internal/platform/timeouts"
	"github.com/evmarques/storefront.chat/internal/services/identity/directory"
	"github.com/evmarques/storefront.chat/internal/services/identity/gatekeeper"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/httpx"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/requestmeta"
	"github.com/evmarques/storefront.chat/internal/services/identity/platform/sessioncookie"
	"github.com/evmarques/storefront.chat/internal/services/identity/rbac"
	"github.com/evmarques/storefront.chat/internal/services/identity/resolver"
	"github.com/evmarques/storefront.chat/internal/services/identity/token"
)

// publicPrefixes bypass edge authentication: the handshake surface, health
// probes, and static assets.
var publicPrefixes = []string{"/auth/", "/healthz", "/static/"}

// Config defines the inputs for the identity server.
type Config struct {
	Addr string
	// LaunchSecret is the shared secret with the chat platform.
	LaunchSecret string
	// Store is the directory backing resolution and revocation.
	Store directory.Store
	// Codec signs and verifies session tokens.
	Codec *token.Codec
	// CrossOriginCookies selects webview-compatible cookie attributes.
	CrossOriginCookies bool
	// TrustForwardedProto honors X-Forwarded-Proto behind a TLS proxy.
	TrustForwardedProto bool
	// EmbedAncestors lists webview origins allowed to frame this service.
	EmbedAncestors []string
	// Now is a clock hook for tests; nil means time.Now.
	Now func() time.Time
}

// Server hosts the identity HTTP endpoints.
type Server struct {
	addr         string
	launchSecret string
	store        directory.Store
	codec        *token.Codec
	registry     directory.Registry
	resolver     *resolver.Resolver
	cookies      sessioncookie.Policy
	now          func() time.Time
	handler      http.Handler
	httpServer   *http.Server
}

// NewServer wires handlers, resolver, and gatekeeper from the config.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("directory store is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("token codec is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		addr:         cfg.Addr,
		launchSecret: cfg.LaunchSecret,
		store:        cfg.Store,
		codec:        cfg.Codec,
		registry:     directory.NewRegistry(cfg.Store),
		resolver:     resolver.New(cfg.Store, cfg.Codec),
		cookies: sessioncookie.Policy{
			CrossOrigin: cfg.CrossOriginCookies,
			Scheme:      requestmeta.SchemePolicy{TrustForwardedProto: cfg.TrustForwardedProto},
		},
		now: cfg.Now,
	}

	guard := gatekeeper.New(gatekeeper.Config{
		Codec:          cfg.Codec,
		PublicPrefixes: publicPrefixes,
		EmbedAncestors: cfg.EmbedAncestors,
		Cookie:         s.cookies,
	})

	mux := http.NewServeMux()
	mux.Handle("/auth/launch", httpx.RequireMethod(http.MethodPost)(http.HandlerFunc(s.handleLaunch)))
	mux.Handle("/auth/logout", httpx.RequireMethod(http.MethodPost)(http.HandlerFunc(s.handleLogout)))
	mux.Handle("/api/session", httpx.RequireMethod(http.MethodGet)(http.HandlerFunc(s.handleSession)))
	mux.Handle("/api/admin/stats", httpx.RequireMethod(http.MethodGet)(s.requireAction(rbac.ActionPlatformSettings, http.HandlerFunc(s.handleStats))))
	mux.Handle("/healthz", http.HandlerFunc(s.handleHealth))
	mux.Handle("/dashboard", s.requireDashboard(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("/admin", s.requireAction(rbac.ActionPlatformSettings, http.HandlerFunc(s.handleAdmin)))
	mux.Handle("/login", http.HandlerFunc(s.handleLogin))

	s.handler = httpx.Chain(
		guard.Guard(mux),
		httpx.Recover(),
		httpx.RequestID(),
		resolver.WithState,
	)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s, nil
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("identity server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	log.Printf("identity listening on %s", s.addr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
