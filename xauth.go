// Package xauth authenticates users against the X platform and dispatches
// platform requests on their behalf. It covers the full credential
// lifecycle: PKCE login, state-validated callbacks, proactive token refresh
// with per-user coalescing, and OAuth2 or OAuth 1.0a signed resource calls.
package xauth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mintfolio/xauth/auth"
	"github.com/mintfolio/xauth/dispatch"
	"github.com/mintfolio/xauth/instrumentation"
	"github.com/mintfolio/xauth/oauth1"
	"github.com/mintfolio/xauth/platform"
	"github.com/mintfolio/xauth/platform/fixture"
	"github.com/mintfolio/xauth/platform/x"
	"github.com/mintfolio/xauth/security"
	"github.com/mintfolio/xauth/storage"
	"github.com/mintfolio/xauth/storage/memory"
	"github.com/mintfolio/xauth/storage/valkey"
)

// Auth is the wired subsystem. Construct it with New and release it with
// Close.
type Auth struct {
	// Service drives the login lifecycle.
	Service *auth.Service

	// Refresher keeps stored credentials valid.
	Refresher *auth.Refresher

	// Dispatcher executes platform requests for authenticated users.
	Dispatcher *dispatch.Dispatcher

	store   storage.Store
	limiter *security.RateLimiter
	auditor *security.Auditor
	instr   *instrumentation.Instrumentation
	logger  *slog.Logger
	config  *Config

	closers []func()
}

// New wires the subsystem from configuration.
func New(cfg *Config) (*Auth, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	instr, err := instrumentation.New(cfg.Instrumentation)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	encryptor, err := newEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}

	a := &Auth{
		instr:   instr,
		logger:  logger,
		config:  cfg,
		auditor: security.NewAuditor(logger, cfg.Security.AuditLogging),
	}

	if err := a.wireStorage(encryptor); err != nil {
		return nil, err
	}

	client, err := newPlatformClient(&cfg.Platform)
	if err != nil {
		a.Close()
		return nil, err
	}

	authorizer := auth.NewAuthorizer(client, logger)

	a.Refresher, err = auth.NewRefresher(&auth.RefresherConfig{
		Store:    a.store,
		Platform: client,
		Margin:   cfg.Security.RefreshMargin,
		Logger:   logger,
		Auditor:  a.auditor,
		Metrics:  instr.Metrics,
		Instr:    instr,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service, err = auth.NewService(&auth.ServiceConfig{
		Store:      a.store,
		Authorizer: authorizer,
		LoginTTL:   cfg.Security.LoginTTL,
		Logger:     logger,
		Metrics:    instr.Metrics,
		Instr:      instr,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	var signer *oauth1.Signer
	if cfg.OAuth1.Enabled() {
		signer, err = oauth1.NewSigner(
			cfg.OAuth1.ConsumerKey,
			cfg.OAuth1.ConsumerSecret,
			cfg.OAuth1.AccessToken,
			cfg.OAuth1.AccessTokenSecret,
		)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Dispatcher, err = dispatch.New(&dispatch.Config{
		Tokens:  a.Refresher,
		Client:  client,
		Signer:  signer,
		Timeout: cfg.HTTP.CallTimeout,
		Logger:  logger,
		Metrics: instr.Metrics,
		Instr:   instr,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Security.LoginRateLimit > 0 {
		burst := cfg.Security.LoginRateBurst
		if burst < 1 {
			burst = 1
		}
		a.limiter = security.NewRateLimiter(cfg.Security.LoginRateLimit, burst, logger)
		a.closers = append(a.closers, a.limiter.Stop)
	}

	logger.Info("Authentication subsystem initialized",
		"platform", client.Name(),
		"encryption", encryptor.IsEnabled(),
		"oauth1", cfg.OAuth1.Enabled(),
	)

	return a, nil
}

// Call dispatches one platform operation for the user.
func (a *Auth) Call(ctx context.Context, userID string, op platform.Operation, body []byte, scheme dispatch.Scheme) (*dispatch.Result, error) {
	return a.Dispatcher.Call(ctx, userID, op, body, scheme)
}

// IsAuthenticated reports whether a credential is stored for the user.
func (a *Auth) IsAuthenticated(ctx context.Context, userID string) (bool, error) {
	return a.Service.IsAuthenticated(ctx, userID)
}

// Logout discards the user's stored credential.
func (a *Auth) Logout(ctx context.Context, userID string) error {
	return a.Service.Logout(ctx, userID)
}

// Close releases background goroutines and storage connections.
func (a *Auth) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *Auth) wireStorage(encryptor *security.Encryptor) error {
	if a.config.Storage.ValkeyAddress != "" {
		store, err := valkey.New(&valkey.Config{
			Address:   a.config.Storage.ValkeyAddress,
			Username:  a.config.Storage.ValkeyUsername,
			Password:  a.config.Storage.ValkeyPassword,
			Prefix:    a.config.Storage.KeyPrefix,
			Encryptor: encryptor,
			Logger:    a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to valkey: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		return nil
	}

	store := memory.New(a.logger, encryptor)
	a.store = store
	a.closers = append(a.closers, store.Close)

	// The in-memory store exposes its sizes directly; the Valkey backend
	// leaves sizing to server-side metrics.
	if err := a.instr.Metrics.RegisterStorageSizeCallbacks(store.CredentialCount, store.LoginCount); err != nil {
		return fmt.Errorf("failed to register storage gauges: %w", err)
	}
	return nil
}

func newEncryptor(encodedKey string) (*security.Encryptor, error) {
	if encodedKey == "" {
		return security.NewEncryptor(nil)
	}
	key, err := security.KeyFromBase64(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return security.NewEncryptor(key)
}

func newPlatformClient(cfg *PlatformConfig) (platform.Client, error) {
	if cfg.UseFixture {
		return fixture.NewClient(), nil
	}
	return x.NewClient(&x.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	})
}
