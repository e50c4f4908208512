// Package testutil provides shared helpers for tests.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/mintfolio/xauth/storage"
)

// GenerateRandomString returns a base64url-encoded random string for use as
// test identifiers and secrets.
func GenerateRandomString(t *testing.T, entropyBytes int) string {
	t.Helper()
	b := make([]byte, entropyBytes)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("failed to generate random string: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ValidCredential returns a credential whose access token is comfortably
// inside its lifetime.
func ValidCredential() *storage.Credential {
	return &storage.Credential{
		Token: &oauth2.Token{
			AccessToken:  "test-access-token",
			TokenType:    "Bearer",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(2 * time.Hour),
		},
		Scopes: []string{"tweet.read", "tweet.write"},
	}
}

// ExpiredCredential returns a credential whose access token has expired but
// whose refresh token is present.
func ExpiredCredential() *storage.Credential {
	return &storage.Credential{
		Token: &oauth2.Token{
			AccessToken:  "stale-access-token",
			TokenType:    "Bearer",
			RefreshToken: "test-refresh-token",
			Expiry:       time.Now().Add(-1 * time.Hour),
		},
		Scopes: []string{"tweet.read"},
	}
}

// PendingLogin returns a login attempt that expires in ttl.
func PendingLogin(state, verifier string, ttl time.Duration) *storage.LoginAttempt {
	now := time.Now()
	return &storage.LoginAttempt{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// AssertNoError fails the test when err is non-nil.
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertError fails the test when err is nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error, got nil", msg)
	}
}
