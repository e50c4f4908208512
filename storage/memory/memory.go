// Package memory provides an in-memory implementation of storage.Store.
// Suitable for single-instance deployments and tests; credentials do not
// survive a restart.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mintfolio/xauth/security"
	"github.com/mintfolio/xauth/storage"
)

// defaultCleanupInterval is how often expired pending logins are swept.
const defaultCleanupInterval = 1 * time.Minute

// Store is an in-memory storage.Store. Tokens and PKCE verifiers are
// encrypted at rest when an enabled encryptor is supplied.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]*storage.Credential
	logins      map[string]*storage.LoginAttempt

	encryptor *security.Encryptor
	logger    *slog.Logger

	// Counters mirror map sizes for lock-free gauge callbacks.
	credentialCount atomic.Int64
	loginCount      atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// New creates a new in-memory store and starts its background sweep of
// expired pending logins. A nil encryptor disables encryption at rest.
func New(logger *slog.Logger, encryptor *security.Encryptor) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if encryptor == nil {
		encryptor, _ = security.NewEncryptor(nil)
	}

	s := &Store{
		credentials:     make(map[string]*storage.Credential),
		logins:          make(map[string]*storage.LoginAttempt),
		encryptor:       encryptor,
		logger:          logger,
		cleanupInterval: defaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// SaveCredential implements storage.CredentialStore.
func (s *Store) SaveCredential(ctx context.Context, userID string, cred *storage.Credential) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if cred == nil || cred.Token == nil {
		return fmt.Errorf("credential with token is required")
	}

	sealed, err := s.sealCredential(cred)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[userID]; !exists {
		s.credentialCount.Add(1)
	}
	s.credentials[userID] = sealed

	return nil
}

// GetCredential implements storage.CredentialStore.
func (s *Store) GetCredential(ctx context.Context, userID string) (*storage.Credential, error) {
	s.mu.RLock()
	sealed, ok := s.credentials[userID]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrCredentialNotFound
	}

	return s.openCredential(sealed)
}

// DeleteCredential implements storage.CredentialStore. Deleting an absent
// credential is a no-op.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[userID]; exists {
		delete(s.credentials, userID)
		s.credentialCount.Add(-1)
	}
	return nil
}

// SaveLogin implements storage.LoginStore.
func (s *Store) SaveLogin(ctx context.Context, attempt *storage.LoginAttempt) error {
	if attempt == nil || attempt.State == "" {
		return fmt.Errorf("login attempt with state is required")
	}

	verifier, err := s.encryptor.Encrypt(attempt.CodeVerifier)
	if err != nil {
		return fmt.Errorf("failed to encrypt code verifier: %w", err)
	}
	sealed := *attempt
	sealed.CodeVerifier = verifier

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.logins[attempt.State]; !exists {
		s.loginCount.Add(1)
	}
	s.logins[attempt.State] = &sealed

	return nil
}

// TakeLogin implements storage.LoginStore. The lookup and delete happen
// under one lock, so a state value can be taken exactly once.
func (s *Store) TakeLogin(ctx context.Context, state string) (*storage.LoginAttempt, error) {
	s.mu.Lock()
	sealed, ok := s.logins[state]
	if ok {
		delete(s.logins, state)
		s.loginCount.Add(-1)
	}
	s.mu.Unlock()

	if !ok {
		return nil, storage.ErrLoginNotFound
	}
	if time.Now().After(sealed.ExpiresAt) {
		return nil, storage.ErrLoginExpired
	}

	verifier, err := s.encryptor.Decrypt(sealed.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt code verifier: %w", err)
	}
	attempt := *sealed
	attempt.CodeVerifier = verifier

	return &attempt, nil
}

// CredentialCount returns the number of stored credentials.
func (s *Store) CredentialCount() int64 {
	return s.credentialCount.Load()
}

// LoginCount returns the number of pending login attempts.
func (s *Store) LoginCount() int64 {
	return s.loginCount.Load()
}

// Close stops the background cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *Store) sealCredential(cred *storage.Credential) (*storage.Credential, error) {
	sealed := cred.Clone()

	access, err := s.encryptor.Encrypt(sealed.Token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.encryptor.Encrypt(sealed.Token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	sealed.Token.AccessToken = access
	sealed.Token.RefreshToken = refresh

	return sealed, nil
}

func (s *Store) openCredential(sealed *storage.Credential) (*storage.Credential, error) {
	cred := sealed.Clone()

	access, err := s.encryptor.Decrypt(cred.Token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := s.encryptor.Decrypt(cred.Token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	cred.Token.AccessToken = access
	cred.Token.RefreshToken = refresh

	return cred, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpiredLogins()
		}
	}
}

func (s *Store) cleanupExpiredLogins() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	for state, attempt := range s.logins {
		if now.After(attempt.ExpiresAt) {
			delete(s.logins, state)
			s.loginCount.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired pending logins", "count", cleaned, "remaining", len(s.logins))
	}
}
