package storage

import "errors"

// Sentinel errors returned by storage implementations. Callers use errors.Is
// to distinguish not-found and expiry conditions from transient backend
// failures.
var (
	// ErrCredentialNotFound indicates no credential is stored for the user.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrLoginNotFound indicates no pending login attempt exists for the
	// state, either because it never existed or because it was already
	// consumed. The two cases are deliberately indistinguishable.
	ErrLoginNotFound = errors.New("login attempt not found")

	// ErrLoginExpired indicates the pending login attempt outlived its
	// window and must be treated as absent.
	ErrLoginExpired = errors.New("login attempt expired")
)
