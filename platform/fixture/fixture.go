// Package fixture implements the platform.Client interface with canned
// responses. It is selected by configuration for development and demo
// environments where real platform credentials are unavailable; production
// code paths never branch on the environment themselves.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// TokenTTL is the lifetime of tokens issued by the fixture client.
const TokenTTL = 2 * time.Hour

// Client implements platform.Client with deterministic fixture data.
type Client struct {
	authURL string
	counter atomic.Int64
}

// NewClient creates a new fixture client.
func NewClient() *Client {
	return &Client{
		authURL: "https://fixture.invalid/oauth2/authorize",
	}
}

// Name returns the client name.
func (c *Client) Name() string {
	return "fixture"
}

// AuthorizationURL mirrors the shape of a real authorization URL so the
// login flow can be exercised end to end.
func (c *Client) AuthorizationURL(state, codeChallenge, codeChallengeMethod string) string {
	return fmt.Sprintf("%s?response_type=code&state=%s&code_challenge=%s&code_challenge_method=%s",
		c.authURL, state, codeChallenge, codeChallengeMethod)
}

// ExchangeCode issues a fresh fixture token for any non-empty code.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	return c.issueToken(), nil
}

// RefreshToken rotates the fixture token for any non-empty refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	return c.issueToken(), nil
}

func (c *Client) issueToken() *oauth2.Token {
	n := c.counter.Add(1)
	return &oauth2.Token{
		AccessToken:  fmt.Sprintf("fixture-access-%d", n),
		RefreshToken: fmt.Sprintf("fixture-refresh-%d", n),
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(TokenTTL),
	}
}

// Do answers known resource endpoints with canned payloads and everything
// else with 404, without touching the network.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var body string
	status := http.StatusOK

	switch {
	case strings.HasSuffix(req.URL.Path, "/2/tweets"):
		body = `{"data":{"id":"1849000000000000001","text":"fixture post"}}`
		status = http.StatusCreated
	case strings.HasSuffix(req.URL.Path, "/media/upload.json"):
		body = `{"media_id":710511363345354753,"media_id_string":"710511363345354753","size":11065,"expires_after_secs":86400}`
	case strings.HasSuffix(req.URL.Path, "/trends/place.json"):
		body = `[{"trends":[{"name":"#GoLang","tweet_volume":52100},{"name":"#NFT","tweet_volume":24800}],"as_of":"2024-06-01T00:00:00Z","locations":[{"name":"Worldwide","woeid":1}]}]`
	default:
		body = `{"errors":[{"message":"fixture: unknown endpoint"}]}`
		status = http.StatusNotFound
	}

	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Request:    req,
	}, nil
}
