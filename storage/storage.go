package storage

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the OAuth2 credential issued by the platform for one user.
// The wrapped oauth2.Token carries the bearer access token, the optional
// refresh token, and the absolute expiry instant. Scopes records the scope
// set the authorization actually granted.
type Credential struct {
	Token  *oauth2.Token
	Scopes []string
}

// Clone returns a deep copy of the credential. Stores return clones so
// callers cannot mutate stored state through the returned pointer.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	clone := &Credential{Scopes: append([]string(nil), c.Scopes...)}
	if c.Token != nil {
		tok := *c.Token
		clone.Token = &tok
	}
	return clone
}

// LoginAttempt is the transient state of one in-flight login. It is created
// when a login is initiated and consumed exactly once by the callback, or
// expires after its window if abandoned.
type LoginAttempt struct {
	// State is the CSRF correlation token sent to the platform and returned
	// in its redirect.
	State string

	// CodeVerifier is the PKCE secret bound to this attempt. It is stored
	// only until the authorization code is exchanged.
	CodeVerifier string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// CredentialStore persists per-user OAuth2 credentials keyed by an opaque
// user identifier. Individual operations are atomic per key; concurrent
// saves for the same user are last-write-wins by completion order.
// All methods accept context.Context for tracing and cancellation.
type CredentialStore interface {
	// SaveCredential upserts the credential for a user, overwriting any
	// prior credential.
	SaveCredential(ctx context.Context, userID string, cred *Credential) error

	// GetCredential retrieves the credential for a user.
	// Returns ErrCredentialNotFound if none is stored.
	GetCredential(ctx context.Context, userID string) (*Credential, error)

	// DeleteCredential removes the credential for a user.
	DeleteCredential(ctx context.Context, userID string) error
}

// LoginStore persists pending login attempts keyed by their state value.
// All methods accept context.Context for tracing and cancellation.
type LoginStore interface {
	// SaveLogin saves a pending login attempt.
	SaveLogin(ctx context.Context, attempt *LoginAttempt) error

	// TakeLogin atomically retrieves and deletes the pending login attempt
	// for a state value. Exactly one concurrent caller can succeed; all
	// others receive ErrLoginNotFound. An attempt past its expiry window is
	// reported as ErrLoginExpired even if a background sweep has not removed
	// it yet.
	//
	// SECURITY: The get-and-delete MUST be atomic. It is what makes a
	// replayed callback for an already-used state fail.
	TakeLogin(ctx context.Context, state string) (*LoginAttempt, error)
}

// Store combines both storage interfaces. The in-memory and Valkey backends
// implement it; consumers that only need one side should depend on the
// narrower interface.
type Store interface {
	CredentialStore
	LoginStore
}
