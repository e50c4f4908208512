// Package mock provides a mock implementation of storage.Store for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/mintfolio/xauth/storage"
)

// Store is a mock storage.Store. Each method delegates to the corresponding
// function field and counts its calls. The defaults behave like a minimal
// in-memory store.
type Store struct {
	SaveCredentialFunc   func(ctx context.Context, userID string, cred *storage.Credential) error
	GetCredentialFunc    func(ctx context.Context, userID string) (*storage.Credential, error)
	DeleteCredentialFunc func(ctx context.Context, userID string) error
	SaveLoginFunc        func(ctx context.Context, attempt *storage.LoginAttempt) error
	TakeLoginFunc        func(ctx context.Context, state string) (*storage.LoginAttempt, error)

	// CallCounts tracks how many times each method was called.
	CallCounts map[string]int

	mu          sync.Mutex
	credentials map[string]*storage.Credential
	logins      map[string]*storage.LoginAttempt
}

// New creates a mock store with in-memory defaults.
func New() *Store {
	s := &Store{
		CallCounts:  make(map[string]int),
		credentials: make(map[string]*storage.Credential),
		logins:      make(map[string]*storage.LoginAttempt),
	}

	s.SaveCredentialFunc = func(_ context.Context, userID string, cred *storage.Credential) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.credentials[userID] = cred.Clone()
		return nil
	}
	s.GetCredentialFunc = func(_ context.Context, userID string) (*storage.Credential, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		cred, ok := s.credentials[userID]
		if !ok {
			return nil, storage.ErrCredentialNotFound
		}
		return cred.Clone(), nil
	}
	s.DeleteCredentialFunc = func(_ context.Context, userID string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.credentials, userID)
		return nil
	}
	s.SaveLoginFunc = func(_ context.Context, attempt *storage.LoginAttempt) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		copied := *attempt
		s.logins[attempt.State] = &copied
		return nil
	}
	s.TakeLoginFunc = func(_ context.Context, state string) (*storage.LoginAttempt, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		attempt, ok := s.logins[state]
		if !ok {
			return nil, storage.ErrLoginNotFound
		}
		delete(s.logins, state)
		if time.Now().After(attempt.ExpiresAt) {
			return nil, storage.ErrLoginExpired
		}
		copied := *attempt
		return &copied, nil
	}

	return s
}

func (s *Store) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCounts[method]++
}

// Calls returns how many times the named method was called.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCounts[method]
}

// SaveCredential implements storage.CredentialStore.
func (s *Store) SaveCredential(ctx context.Context, userID string, cred *storage.Credential) error {
	s.record("SaveCredential")
	return s.SaveCredentialFunc(ctx, userID, cred)
}

// GetCredential implements storage.CredentialStore.
func (s *Store) GetCredential(ctx context.Context, userID string) (*storage.Credential, error) {
	s.record("GetCredential")
	return s.GetCredentialFunc(ctx, userID)
}

// DeleteCredential implements storage.CredentialStore.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	s.record("DeleteCredential")
	return s.DeleteCredentialFunc(ctx, userID)
}

// SaveLogin implements storage.LoginStore.
func (s *Store) SaveLogin(ctx context.Context, attempt *storage.LoginAttempt) error {
	s.record("SaveLogin")
	return s.SaveLoginFunc(ctx, attempt)
}

// TakeLogin implements storage.LoginStore.
func (s *Store) TakeLogin(ctx context.Context, state string) (*storage.LoginAttempt, error) {
	s.record("TakeLogin")
	return s.TakeLoginFunc(ctx, state)
}
