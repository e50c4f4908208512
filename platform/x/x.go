// Package x implements the platform.Client interface against the live X
// platform OAuth2 and resource endpoints.
package x

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Endpoint is the X platform's OAuth2 endpoint pair.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://x.com/i/oauth2/authorize",
	TokenURL: "https://api.x.com/2/oauth2/token",
}

// DefaultScopes request read/write posting plus offline access so refresh
// tokens are issued.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Config holds X platform OAuth configuration.
type Config struct {
	// ClientID is the OAuth2 client ID issued by the platform (required).
	ClientID string

	// ClientSecret is the OAuth2 client secret (required for confidential
	// clients).
	ClientSecret string

	// RedirectURL is where the platform redirects after authentication.
	RedirectURL string

	// Scopes overrides DefaultScopes when non-empty.
	Scopes []string

	// HTTPClient is an optional custom HTTP client. It is used for token
	// exchange, refresh, and resource calls, and should carry a bounded
	// timeout.
	HTTPClient *http.Client
}

// Client implements the platform.Client interface for the X platform.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewClient creates a new live platform client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     Endpoint,
		},
		httpClient: httpClient,
	}, nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return "x"
}

// AuthorizationURL generates the platform authorization URL with PKCE
// parameters.
func (c *Client) AuthorizationURL(state, codeChallenge, codeChallengeMethod string) string {
	var opts []oauth2.AuthCodeOption
	if codeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", codeChallengeMethod),
		)
	}
	return c.config.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_verifier", codeVerifier),
		)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	return token, nil
}

// RefreshToken exchanges a refresh token for a new token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tokenSource := c.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return newToken, nil
}

// Do executes a signed resource request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Scopes returns the configured scope set.
func (c *Client) Scopes() []string {
	return c.config.Scopes
}
