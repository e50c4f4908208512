package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/mintfolio/xauth/platform"
	"github.com/mintfolio/xauth/security"
	"github.com/mintfolio/xauth/storage"
)

// codeChallengeMethodS256 is the only PKCE method this subsystem uses; the
// plain method is never offered.
const codeChallengeMethodS256 = "S256"

// Authorization is the result of initiating a login: the URL to redirect the
// user to and the secrets that must survive until the callback.
type Authorization struct {
	// AuthURL is the platform authorization URL the user is sent to.
	AuthURL string

	// State is the CSRF correlation value embedded in AuthURL.
	State string

	// CodeVerifier is the PKCE secret the code challenge was derived from.
	// It must be presented again during code exchange.
	CodeVerifier string
}

// Authorizer builds authorization URLs and exchanges authorization codes.
// It is side-effect free: it never touches storage, so callers decide what
// to persist and when.
type Authorizer struct {
	platform platform.Client
	logger   *slog.Logger
}

// NewAuthorizer creates a new authorizer on the given platform client.
func NewAuthorizer(client platform.Client, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{
		platform: client,
		logger:   logger,
	}
}

// BeginAuthorization generates fresh state and PKCE material and returns the
// authorization URL carrying them. Every call produces independent secrets;
// nothing is stored.
func (a *Authorizer) BeginAuthorization() (*Authorization, error) {
	state, err := security.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	authURL := a.platform.AuthorizationURL(state, challenge, codeChallengeMethodS256)

	a.logger.Debug("Authorization initiated", "platform", a.platform.Name())

	return &Authorization{
		AuthURL:      authURL,
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

// ExchangeCode redeems an authorization code with its PKCE verifier and
// returns the resulting credential. A grant the platform rejects maps to
// ErrInvalidGrant; transport failures map to NetworkError.
func (a *Authorizer) ExchangeCode(ctx context.Context, code, codeVerifier string) (*storage.Credential, error) {
	token, err := a.platform.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return nil, classifyTokenEndpointError(err, ErrInvalidGrant)
	}

	return &storage.Credential{
		Token:  token,
		Scopes: grantedScopes(token),
	}, nil
}

// classifyTokenEndpointError maps a token endpoint failure onto the error
// taxonomy. rejectedGrant names the sentinel for a definitive rejection:
// ErrInvalidGrant during exchange, ErrReauthorizationRequired during refresh.
func classifyTokenEndpointError(err error, rejectedGrant error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		statusCode := 0
		if retrieveErr.Response != nil {
			statusCode = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode == "invalid_grant" || statusCode == 400 || statusCode == 401 {
			return fmt.Errorf("%v: %w", err, rejectedGrant)
		}
		return &PlatformError{
			StatusCode: statusCode,
			Body:       retrieveErr.Body,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Err: err}
	}

	return err
}

// grantedScopes extracts the scope set the authorization actually granted.
// The platform reports it space-delimited in the token response.
func grantedScopes(token *oauth2.Token) []string {
	raw, _ := token.Extra("scope").(string)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}
