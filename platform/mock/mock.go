// Package mock provides a mock implementation of the platform.Client
// interface for testing.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Client is a mock implementation of platform.Client. Each method delegates
// to the corresponding function field and counts its calls.
type Client struct {
	// NameFunc is called when Name() is invoked.
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked.
	AuthorizationURLFunc func(state, codeChallenge, codeChallengeMethod string) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked.
	ExchangeCodeFunc func(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// RefreshTokenFunc is called when RefreshToken() is invoked.
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// DoFunc is called when Do() is invoked.
	DoFunc func(req *http.Request) (*http.Response, error)

	// CallCounts tracks how many times each method was called.
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access.
	mu sync.RWMutex
}

// NewClient creates a new mock client with default implementations.
func NewClient() *Client {
	return &Client{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state, codeChallenge, codeChallengeMethod string) string {
			return fmt.Sprintf("https://mock.example.com/authorize?state=%s&code_challenge=%s&code_challenge_method=%s",
				state, codeChallenge, codeChallengeMethod)
		},
		ExchangeCodeFunc: func(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "mock-refresh-token",
				Expiry:       time.Now().Add(2 * time.Hour),
			}, nil
		},
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "new-mock-access-token",
				TokenType:    "Bearer",
				RefreshToken: "new-mock-refresh-token",
				Expiry:       time.Now().Add(2 * time.Hour),
			}, nil
		},
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{},
				Body:       io.NopCloser(bytes.NewReader([]byte(`{}`))),
				Request:    req,
			}, nil
		},
	}
}

func (c *Client) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCounts[method]++
}

// Calls returns how many times the named method was called.
func (c *Client) Calls(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CallCounts[method]
}

// Name implements platform.Client.
func (c *Client) Name() string {
	c.record("Name")
	return c.NameFunc()
}

// AuthorizationURL implements platform.Client.
func (c *Client) AuthorizationURL(state, codeChallenge, codeChallengeMethod string) string {
	c.record("AuthorizationURL")
	return c.AuthorizationURLFunc(state, codeChallenge, codeChallengeMethod)
}

// ExchangeCode implements platform.Client.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	c.record("ExchangeCode")
	return c.ExchangeCodeFunc(ctx, code, codeVerifier)
}

// RefreshToken implements platform.Client.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	c.record("RefreshToken")
	return c.RefreshTokenFunc(ctx, refreshToken)
}

// Do implements platform.Client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.record("Do")
	return c.DoFunc(req)
}
