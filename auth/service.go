package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mintfolio/xauth/instrumentation"
	"github.com/mintfolio/xauth/storage"
)

// DefaultLoginTTL is the window within which a pending login must complete.
const DefaultLoginTTL = 10 * time.Minute

// Service drives the login lifecycle end to end: it initiates
// authorizations, validates callbacks, and persists the resulting
// credentials.
type Service struct {
	store      storage.Store
	authorizer *Authorizer
	loginTTL   time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	instr      *instrumentation.Instrumentation
}

// ServiceConfig configures a Service. Store and Authorizer are required.
type ServiceConfig struct {
	Store      storage.Store
	Authorizer *Authorizer

	// LoginTTL bounds how long a pending login may wait for its callback.
	// Defaults to DefaultLoginTTL when zero.
	LoginTTL time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Instr   *instrumentation.Instrumentation
}

// NewService creates a new login service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}

	loginTTL := cfg.LoginTTL
	if loginTTL == 0 {
		loginTTL = DefaultLoginTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:      cfg.Store,
		authorizer: cfg.Authorizer,
		loginTTL:   loginTTL,
		logger:     logger,
		metrics:    cfg.Metrics,
		instr:      cfg.Instr,
	}, nil
}

// BeginLogin initiates a login: it generates fresh authorization material,
// records the pending attempt, and returns the URL to send the user to.
func (s *Service) BeginLogin(ctx context.Context) (*Authorization, error) {
	authz, err := s.authorizer.BeginAuthorization()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	attempt := &storage.LoginAttempt{
		State:        authz.State,
		CodeVerifier: authz.CodeVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.loginTTL),
	}
	if err := s.store.SaveLogin(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to save pending login: %w", err)
	}

	s.metrics.RecordLoginStarted(ctx)

	return authz, nil
}

// CompleteLogin finishes a login from callback parameters. The state is
// validated before any code exchange; an unknown, expired, or already-used
// state fails with ErrStateMismatch without contacting the platform. On
// success a new opaque user identifier is minted and the credential stored
// under it.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (string, *storage.Credential, error) {
	ctx, span := s.instr.StartSpan(ctx, "auth.complete_login")
	defer span.End()

	userID, cred, err := s.completeLogin(ctx, state, code)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return userID, cred, nil
}

func (s *Service) completeLogin(ctx context.Context, state, code string) (string, *storage.Credential, error) {
	if state == "" {
		s.metrics.RecordLoginFailed(ctx, "state_mismatch")
		return "", nil, fmt.Errorf("missing state: %w", ErrStateMismatch)
	}

	attempt, err := s.store.TakeLogin(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrLoginNotFound) || errors.Is(err, storage.ErrLoginExpired) {
			s.metrics.RecordLoginFailed(ctx, "state_mismatch")
			return "", nil, fmt.Errorf("unknown or expired state: %w", ErrStateMismatch)
		}
		return "", nil, fmt.Errorf("failed to look up pending login: %w", err)
	}

	// The store already keyed on state; compare again in constant time so the
	// check does not depend on lookup implementation details.
	if subtle.ConstantTimeCompare([]byte(attempt.State), []byte(state)) != 1 {
		s.metrics.RecordLoginFailed(ctx, "state_mismatch")
		return "", nil, fmt.Errorf("state comparison failed: %w", ErrStateMismatch)
	}

	// A callback without a code is malformed; there is nothing to exchange.
	// The attempt is already consumed, so a later replay still fails.
	if code == "" {
		s.metrics.RecordLoginFailed(ctx, "missing_code")
		return "", nil, fmt.Errorf("missing authorization code: %w", ErrInvalidGrant)
	}

	cred, err := s.authorizer.ExchangeCode(ctx, code, attempt.CodeVerifier)
	if err != nil {
		s.metrics.RecordLoginFailed(ctx, "exchange_failed")
		return "", nil, err
	}

	// A fresh identifier per completed login. Identity linking across logins
	// is the caller's concern.
	userID := uuid.NewString()

	if err := s.store.SaveCredential(ctx, userID, cred); err != nil {
		return "", nil, fmt.Errorf("failed to save credential: %w", err)
	}

	s.logger.Info("Login completed", "platform", s.authorizer.platform.Name())
	s.metrics.RecordLoginCompleted(ctx)

	return userID, cred, nil
}

// IsAuthenticated reports whether a credential is stored for the user. It
// does not check validity; EnsureValid does that on use.
func (s *Service) IsAuthenticated(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Logout discards the user's stored credential. Revocation at the platform
// is not attempted.
func (s *Service) Logout(ctx context.Context, userID string) error {
	err := s.store.DeleteCredential(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrCredentialNotFound) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
