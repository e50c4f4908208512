package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the authentication subsystem. Callers match them with
// errors.Is.
var (
	// ErrInvalidGrant indicates the platform rejected an authorization code
	// during exchange.
	ErrInvalidGrant = errors.New("authorization grant rejected")

	// ErrStateMismatch indicates a callback carried an unknown, expired, or
	// already-used state value. The cases are deliberately indistinguishable
	// to callers.
	ErrStateMismatch = errors.New("login state mismatch")

	// ErrNotAuthenticated indicates no credential is stored for the user.
	ErrNotAuthenticated = errors.New("user not authenticated")

	// ErrReauthorizationRequired indicates the user's refresh token was
	// rejected and the stored credential has been discarded. The user must
	// log in again.
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// ErrUnauthorized indicates the platform rejected credentials that this
	// subsystem believed valid, and a refresh did not help.
	ErrUnauthorized = errors.New("platform rejected credentials")
)

// RateLimitedError indicates the platform throttled a request.
type RateLimitedError struct {
	// RetryAfter is the wait the platform asked for, zero when it gave none.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by platform, retry after %s", e.RetryAfter)
	}
	return "rate limited by platform"
}

// PlatformError indicates a platform response outside the classified cases.
type PlatformError struct {
	StatusCode int
	Body       []byte
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform returned status %d", e.StatusCode)
}

// NetworkError indicates the request never produced a platform response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
