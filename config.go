package xauth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mintfolio/xauth/instrumentation"
)

// Config is the top-level configuration for the subsystem.
type Config struct {
	Platform PlatformConfig
	OAuth1   OAuth1Config
	Storage  StorageConfig
	Security SecurityConfig
	HTTP     HTTPConfig

	// Logger receives structured logs. Defaults to slog.Default.
	Logger *slog.Logger

	// Instrumentation configures metrics and tracing providers. Nil keeps
	// instrumentation wired with no-op providers.
	Instrumentation *instrumentation.Config
}

// PlatformConfig selects and configures the platform client.
type PlatformConfig struct {
	// UseFixture selects the canned-response client instead of the live
	// platform. Intended for development and demo environments.
	UseFixture bool

	// ClientID is the OAuth2 client ID. Required unless UseFixture is set.
	ClientID string

	// ClientSecret is the OAuth2 client secret for confidential clients.
	ClientSecret string

	// RedirectURL is the registered callback URL. Required unless UseFixture
	// is set.
	RedirectURL string

	// Scopes overrides the default scope set when non-empty.
	Scopes []string
}

// OAuth1Config holds the application-level OAuth 1.0a credentials for the
// legacy endpoints. Leave empty to disable OAuth 1.0a dispatching.
type OAuth1Config struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Enabled reports whether OAuth 1.0a credentials are configured.
func (c OAuth1Config) Enabled() bool {
	return c.ConsumerKey != ""
}

// StorageConfig selects the storage backend. An empty ValkeyAddress selects
// the in-memory store.
type StorageConfig struct {
	ValkeyAddress  string
	ValkeyUsername string
	ValkeyPassword string

	// KeyPrefix namespaces Valkey keys. Defaults to "xauth:".
	KeyPrefix string
}

// SecurityConfig tunes the security posture.
type SecurityConfig struct {
	// EncryptionKey is a base64-encoded 32-byte key for encrypting stored
	// tokens. Empty disables encryption at rest.
	EncryptionKey string

	// AuditLogging enables the security audit trail.
	AuditLogging bool

	// LoginRateLimit is the per-IP sustained rate for login endpoints, in
	// requests per second. Zero disables rate limiting.
	LoginRateLimit float64

	// LoginRateBurst is the per-IP burst for login endpoints.
	LoginRateBurst int

	// LoginTTL bounds how long a pending login may wait for its callback.
	// Defaults to auth.DefaultLoginTTL when zero.
	LoginTTL time.Duration

	// RefreshMargin is the proactive token refresh margin. Defaults to
	// security.DefaultRefreshMargin when zero.
	RefreshMargin time.Duration
}

// HTTPConfig tunes the HTTP handler.
type HTTPConfig struct {
	// SuccessRedirectURL is where completed logins are redirected. Required
	// when the handler is used.
	SuccessRedirectURL string

	// TrustProxy enables reading the client IP from X-Forwarded-For. Enable
	// only behind a proxy that overwrites the header.
	TrustProxy bool

	// CallTimeout bounds dispatched platform calls. Defaults to
	// dispatch.DefaultCallTimeout when zero.
	CallTimeout time.Duration
}

// Validate checks required configuration before wiring.
func (c *Config) Validate() error {
	if !c.Platform.UseFixture {
		if c.Platform.ClientID == "" {
			return fmt.Errorf("platform client ID is required")
		}
		if c.Platform.RedirectURL == "" {
			return fmt.Errorf("platform redirect URL is required")
		}
	}
	if c.OAuth1.ConsumerKey != "" && c.OAuth1.ConsumerSecret == "" {
		return fmt.Errorf("OAuth 1.0a consumer secret is required when consumer key is set")
	}
	return nil
}
