// Package identity wires configuration and startup for the identity server.
package identity

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evmarques/storefront.chat/internal/services/identity/app"
	"github.com/evmarques/storefront.chat/internal/services/identity/storage/sqlite"
	"github.com/evmarques/storefront.chat/internal/services/identity/token"
)

const defaultHTTPAddr = ":8086"

// Config holds the identity command configuration.
type Config struct {
	HTTPAddr            string
	DBPath              string
	LaunchSecret        string
	CrossOriginCookies  bool
	TrustForwardedProto bool
	EmbedAncestors      []string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config, with environment fallbacks.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		HTTPAddr:            envOrDefault(lookup, "STOREFRONT_CHAT_IDENTITY_ADDR", defaultHTTPAddr),
		DBPath:              envOrDefault(lookup, "STOREFRONT_CHAT_IDENTITY_DB_PATH", filepath.Join("data", "identity.db")),
		LaunchSecret:        envOrDefault(lookup, "STOREFRONT_CHAT_LAUNCH_SECRET", ""),
		CrossOriginCookies:  envBool(lookup, "STOREFRONT_CHAT_COOKIE_CROSS_ORIGIN"),
		TrustForwardedProto: envBool(lookup, "STOREFRONT_CHAT_TRUST_FORWARDED_PROTO"),
		EmbedAncestors:      splitCSV(envOrDefault(lookup, "STOREFRONT_CHAT_EMBED_ANCESTORS", "")),
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the directory sqlite database")
	fs.BoolVar(&cfg.CrossOriginCookies, "cross-origin-cookies", cfg.CrossOriginCookies, "issue webview-compatible cross-origin cookies")
	fs.BoolVar(&cfg.TrustForwardedProto, "trust-forwarded-proto", cfg.TrustForwardedProto, "honor X-Forwarded-Proto behind a TLS proxy")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Run starts the identity server and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	if dir := filepath.Dir(filepath.Clean(cfg.DBPath)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open directory store: %w", err)
	}
	defer store.Close()

	codec, err := token.LoadCodecFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load token codec: %w", err)
	}

	server, err := app.NewServer(app.Config{
		Addr:                cfg.HTTPAddr,
		LaunchSecret:        cfg.LaunchSecret,
		Store:               store,
		Codec:               codec,
		CrossOriginCookies:  cfg.CrossOriginCookies,
		TrustForwardedProto: cfg.TrustForwardedProto,
		EmbedAncestors:      cfg.EmbedAncestors,
	})
	if err != nil {
		return fmt.Errorf("init identity server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve identity: %w", err)
	}
	return nil
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func envBool(lookup EnvLookup, key string) bool {
	value := envOrDefault(lookup, key, "")
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	output := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		output = append(output, trimmed)
	}
	return output
}
