// Package platform defines the client interface to the X platform: the
// OAuth2 token endpoints used during login and refresh, and the transport
// for authenticated resource calls.
//
// Two implementations exist: platform/x talks to the live platform, and
// platform/fixture returns canned responses for development environments.
// Which one is used is a construction-time configuration choice; business
// logic never branches on the environment.
package platform

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// Client is the boundary to the X platform.
type Client interface {
	// Name returns the client name (e.g., "x", "fixture").
	Name() string

	// AuthorizationURL generates the URL to redirect users for
	// authentication. codeChallenge and codeChallengeMethod carry the PKCE
	// parameters.
	AuthorizationURL(state, codeChallenge, codeChallengeMethod string) string

	// ExchangeCode exchanges an authorization code for tokens.
	// codeVerifier is the PKCE secret the challenge was derived from.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// RefreshToken exchanges a refresh token for a new token.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Do executes an already-signed resource request. Implementations apply
	// their transport but never alter authorization headers.
	Do(req *http.Request) (*http.Response, error)
}

// Operation identifies one platform resource endpoint.
type Operation struct {
	// Name is a stable identifier used in logs and metrics.
	Name string

	// Method is the HTTP method.
	Method string

	// URL is the absolute endpoint URL.
	URL string

	// ContentType is the request body content type, when a body is sent.
	ContentType string
}

// Resource operations dispatched on behalf of users. Media upload lives on
// the legacy v1.1 host and only accepts OAuth 1.0a signatures; the others
// accept OAuth2 bearer tokens.
var (
	OpCreatePost = Operation{
		Name:        "create_post",
		Method:      http.MethodPost,
		URL:         "https://api.x.com/2/tweets",
		ContentType: "application/json",
	}

	OpUploadMedia = Operation{
		Name:        "upload_media",
		Method:      http.MethodPost,
		URL:         "https://upload.twitter.com/1.1/media/upload.json",
		ContentType: "application/x-www-form-urlencoded",
	}

	OpTrendsByPlace = Operation{
		Name:   "trends_place",
		Method: http.MethodGet,
		URL:    "https://api.x.com/1.1/trends/place.json",
	}
)
