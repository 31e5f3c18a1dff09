// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Public base URL of this service (OAuth redirect + webhook addresses).
	BaseURL string
	// Where the embedded portal UI lives; the OAuth callback redirects here.
	PortalURL string

	// Shopify app credentials. The shared secret also keys webhook and
	// OAuth-callback MAC verification.
	ShopifyAPIKey     string
	ShopifySecret     string
	ShopifyAPIVersion string
	// Scopes requested at install, comma-separated.
	InstallScopes string
	// Webhook topics registered on install.
	WebhookTopics []string

	// Master key for secrets at rest (base64, 32 bytes).
	EncryptionKey string
	// HS256 key for portal session tokens.
	SessionSecret string
	SessionTTL    time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	ActivityRetentionDays int

	UpstreamTimeout time.Duration

	// Optional resource-registry override file (YAML) and Rego policy file.
	ResourceFile string
	PolicyFile   string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                   env("PORTALBRIDGE_ENV", "dev"),
		HTTPAddr:              env("PORTALBRIDGE_HTTP_ADDR", ":8080"),
		BaseURL:               env("BASE_PUBLIC_URL", "http://localhost:8080"),
		PortalURL:             env("PORTAL_URL", "http://localhost:3000"),
		ShopifyAPIKey:         env("SHOPIFY_API_KEY", ""),
		ShopifySecret:         env("SHOPIFY_API_SECRET", ""),
		ShopifyAPIVersion:     env("SHOPIFY_API_VERSION", "2024-01"),
		InstallScopes:         env("SHOPIFY_SCOPES", "read_orders,write_orders,read_products,write_products,read_customers,write_customers,read_inventory,write_inventory,read_locations,read_fulfillments,write_fulfillments"),
		WebhookTopics:         envList("WEBHOOK_TOPICS", "app/uninstalled,shop/update"),
		EncryptionKey:         env("ENCRYPTION_KEY", ""),
		SessionSecret:         env("SESSION_SECRET", ""),
		SessionTTL:            envDur("SESSION_TTL_HOURS", 24*7) * time.Hour,
		RateLimitMax:          envInt("RATE_LIMIT_MAX", 120),
		RateLimitWindow:       envDur("RATE_LIMIT_WINDOW_SEC", 60) * time.Second,
		ActivityRetentionDays: envInt("ACTIVITY_RETENTION_DAYS", 90),
		UpstreamTimeout:       envDur("UPSTREAM_TIMEOUT_SEC", 30) * time.Second,
		ResourceFile:          env("RESOURCE_REGISTRY_FILE", ""),
		PolicyFile:            env("GATEWAY_POLICY_FILE", ""),
		RedisURL:              env("REDIS_URL", ""),
		DatabaseURL:           env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — tenant and credential storage unavailable")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	return time.Duration(envInt(k, def))
}
func envList(k, def string) []string {
	raw := env(k, def)
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
