package x

import (
	"net/url"
	"strings"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(&Config{RedirectURL: "https://app.example.com/cb"}); err == nil {
		t.Error("expected error without client ID")
	}
	if _, err := NewClient(&Config{ClientID: "id"}); err == nil {
		t.Error("expected error without redirect URL")
	}
}

func TestNewClientDefaultsScopes(t *testing.T) {
	c, err := NewClient(&Config{ClientID: "id", RedirectURL: "https://app.example.com/cb"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if len(c.Scopes()) != len(DefaultScopes) {
		t.Errorf("expected default scopes, got %v", c.Scopes())
	}
}

func TestAuthorizationURL(t *testing.T) {
	c, err := NewClient(&Config{
		ClientID:    "client-id",
		RedirectURL: "https://app.example.com/cb",
		Scopes:      []string{"tweet.read"},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	raw := c.AuthorizationURL("the-state", "the-challenge", "S256")
	if !strings.HasPrefix(raw, Endpoint.AuthURL) {
		t.Fatalf("expected authorization URL on %s, got %s", Endpoint.AuthURL, raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "the-state" {
		t.Errorf("expected state parameter, got %q", q.Get("state"))
	}
	if q.Get("code_challenge") != "the-challenge" || q.Get("code_challenge_method") != "S256" {
		t.Errorf("expected PKCE parameters, got challenge %q method %q",
			q.Get("code_challenge"), q.Get("code_challenge_method"))
	}
	if q.Get("client_id") != "client-id" {
		t.Errorf("expected client_id parameter, got %q", q.Get("client_id"))
	}
	if q.Get("scope") != "tweet.read" {
		t.Errorf("expected scope parameter, got %q", q.Get("scope"))
	}
}
