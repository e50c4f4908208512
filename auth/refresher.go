package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/mintfolio/xauth/instrumentation"
	"github.com/mintfolio/xauth/platform"
	"github.com/mintfolio/xauth/security"
	"github.com/mintfolio/xauth/storage"
)

// Refresher keeps stored credentials valid. EnsureValid returns the stored
// credential when its remaining lifetime clears the margin, and refreshes it
// otherwise. Concurrent refreshes for the same user are coalesced into one
// platform round trip.
type Refresher struct {
	store    storage.CredentialStore
	platform platform.Client
	margin   time.Duration
	logger   *slog.Logger
	auditor  *security.Auditor
	metrics  *instrumentation.Metrics
	instr    *instrumentation.Instrumentation

	group singleflight.Group
}

// RefresherConfig configures a Refresher. Store and Platform are required.
type RefresherConfig struct {
	Store    storage.CredentialStore
	Platform platform.Client

	// Margin is the proactive refresh margin. Defaults to
	// security.DefaultRefreshMargin when zero.
	Margin time.Duration

	Logger  *slog.Logger
	Auditor *security.Auditor
	Metrics *instrumentation.Metrics
	Instr   *instrumentation.Instrumentation
}

// NewRefresher creates a new refresher.
func NewRefresher(cfg *RefresherConfig) (*Refresher, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("platform client is required")
	}

	margin := cfg.Margin
	if margin == 0 {
		margin = security.DefaultRefreshMargin
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		store:    cfg.Store,
		platform: cfg.Platform,
		margin:   margin,
		logger:   logger,
		auditor:  cfg.Auditor,
		metrics:  cfg.Metrics,
		instr:    cfg.Instr,
	}, nil
}

// EnsureValid returns a credential for the user that will stay valid past
// the refresh margin, refreshing it first when needed.
// Returns ErrNotAuthenticated when no credential is stored and
// ErrReauthorizationRequired when the refresh token is no longer accepted.
func (r *Refresher) EnsureValid(ctx context.Context, userID string) (*storage.Credential, error) {
	cred, err := r.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return nil, fmt.Errorf("no credential for user: %w", ErrNotAuthenticated)
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	if !security.NeedsRefresh(cred.Token.Expiry, r.margin) {
		return cred, nil
	}

	return r.refresh(ctx, userID, false)
}

// ForceRefresh refreshes the user's credential unconditionally. Used when
// the platform rejects an access token this subsystem still believed valid.
func (r *Refresher) ForceRefresh(ctx context.Context, userID string) (*storage.Credential, error) {
	return r.refresh(ctx, userID, true)
}

// refresh performs one coalesced refresh per user. All concurrent callers
// for the same userID share a single platform round trip and receive the
// same outcome.
func (r *Refresher) refresh(ctx context.Context, userID string, force bool) (*storage.Credential, error) {
	ctx, span := r.instr.StartSpan(ctx, "auth.refresh",
		attribute.Bool("forced", force),
	)
	defer span.End()

	v, err, shared := r.group.Do(userID, func() (any, error) {
		// Re-read inside the flight: a caller that queued behind a completed
		// refresh must see the new credential, not redo the refresh.
		cred, err := r.store.GetCredential(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrCredentialNotFound) {
				return nil, fmt.Errorf("no credential for user: %w", ErrNotAuthenticated)
			}
			return nil, fmt.Errorf("failed to load credential: %w", err)
		}

		if !force && !security.NeedsRefresh(cred.Token.Expiry, r.margin) {
			return cred, nil
		}

		if cred.Token.RefreshToken == "" {
			return nil, r.discardCredential(ctx, userID, "no refresh token")
		}

		newToken, err := r.platform.RefreshToken(ctx, cred.Token.RefreshToken)
		if err != nil {
			classified := classifyTokenEndpointError(err, ErrReauthorizationRequired)
			if errors.Is(classified, ErrReauthorizationRequired) {
				return nil, r.discardCredential(ctx, userID, "refresh token rejected")
			}
			r.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshOutcomeError)
			return nil, classified
		}

		// Rotation: platforms may return a new refresh token or keep the old
		// one valid and omit it.
		rotated := newToken.RefreshToken != "" && newToken.RefreshToken != cred.Token.RefreshToken
		if newToken.RefreshToken == "" {
			newToken.RefreshToken = cred.Token.RefreshToken
		}

		updated := &storage.Credential{
			Token:  newToken,
			Scopes: cred.Scopes,
		}
		if err := r.store.SaveCredential(ctx, userID, updated); err != nil {
			return nil, fmt.Errorf("failed to save refreshed credential: %w", err)
		}

		r.logger.Debug("Credential refreshed", "rotated", rotated)
		r.auditor.LogTokenRefreshed(userID, rotated)
		r.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshOutcomeRefreshed)

		return updated, nil
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanAttributes(span, attribute.Bool("coalesced", shared))
	instrumentation.SetSpanSuccess(span)

	// Each caller gets its own copy of the shared flight result.
	return v.(*storage.Credential).Clone(), nil
}

// discardCredential deletes the user's credential and returns the
// reauthorization error. The deletion makes the failure terminal: subsequent
// calls report ErrNotAuthenticated rather than retrying a dead refresh token.
func (r *Refresher) discardCredential(ctx context.Context, userID, reason string) error {
	if err := r.store.DeleteCredential(ctx, userID); err != nil && !errors.Is(err, storage.ErrCredentialNotFound) {
		r.logger.Warn("Failed to delete rejected credential", "error", err)
	}

	r.auditor.LogReauthorizationRequired(userID, reason)
	r.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshOutcomeReauthRequired)

	return fmt.Errorf("%s: %w", reason, ErrReauthorizationRequired)
}
