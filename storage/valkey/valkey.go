// Package valkey provides a Valkey-backed implementation of storage.Store
// for multi-instance deployments. Pending logins are consumed with GETDEL,
// so the take-once guarantee holds across instances.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"golang.org/x/oauth2"

	"github.com/mintfolio/xauth/security"
	"github.com/mintfolio/xauth/storage"
)

const (
	defaultPrefix = "xauth:"

	credentialKeyPrefix = "cred:"
	loginKeyPrefix      = "login:"

	connectTimeout = 5 * time.Second
)

// Config configures the Valkey store.
type Config struct {
	// Address is the Valkey server address (host:port). Required.
	Address string

	// Username and Password are optional server credentials.
	Username string
	Password string

	// Prefix namespaces all keys. Defaults to "xauth:".
	Prefix string

	// Encryptor encrypts values at rest when enabled. Optional.
	Encryptor *security.Encryptor

	Logger *slog.Logger
}

// Store is a Valkey-backed storage.Store.
type Store struct {
	client    valkeygo.Client
	prefix    string
	encryptor *security.Encryptor
	logger    *slog.Logger
}

// credentialRecord is the stored JSON form of a credential.
type credentialRecord struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// loginRecord is the stored JSON form of a pending login.
type loginRecord struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// New creates a new Valkey store and verifies connectivity.
func New(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	encryptor := cfg.Encryptor
	if encryptor == nil {
		encryptor, _ = security.NewEncryptor(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client:    client,
		prefix:    prefix,
		encryptor: encryptor,
		logger:    logger,
	}, nil
}

// SaveCredential implements storage.CredentialStore.
func (s *Store) SaveCredential(ctx context.Context, userID string, cred *storage.Credential) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if cred == nil || cred.Token == nil {
		return fmt.Errorf("credential with token is required")
	}

	record := credentialRecord{
		AccessToken:  cred.Token.AccessToken,
		TokenType:    cred.Token.TokenType,
		RefreshToken: cred.Token.RefreshToken,
		Expiry:       cred.Token.Expiry,
		Scopes:       cred.Scopes,
	}
	value, err := s.seal(record)
	if err != nil {
		return err
	}

	key := s.prefix + credentialKeyPrefix + userID
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// GetCredential implements storage.CredentialStore.
func (s *Store) GetCredential(ctx context.Context, userID string) (*storage.Credential, error) {
	key := s.prefix + credentialKeyPrefix + userID

	value, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var record credentialRecord
	if err := s.open(value, &record); err != nil {
		return nil, err
	}

	return &storage.Credential{
		Token: &oauth2.Token{
			AccessToken:  record.AccessToken,
			TokenType:    record.TokenType,
			RefreshToken: record.RefreshToken,
			Expiry:       record.Expiry,
		},
		Scopes: record.Scopes,
	}, nil
}

// DeleteCredential implements storage.CredentialStore. Deleting an absent
// credential is a no-op.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	key := s.prefix + credentialKeyPrefix + userID
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// SaveLogin implements storage.LoginStore. The key expires with the attempt,
// so abandoned logins clean themselves up server-side.
func (s *Store) SaveLogin(ctx context.Context, attempt *storage.LoginAttempt) error {
	if attempt == nil || attempt.State == "" {
		return fmt.Errorf("login attempt with state is required")
	}

	ttl := time.Until(attempt.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("login attempt already expired")
	}

	record := loginRecord{
		State:        attempt.State,
		CodeVerifier: attempt.CodeVerifier,
		CreatedAt:    attempt.CreatedAt,
		ExpiresAt:    attempt.ExpiresAt,
	}
	value, err := s.seal(record)
	if err != nil {
		return err
	}

	key := s.prefix + loginKeyPrefix + attempt.State
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(value).Ex(ttl).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save pending login: %w", err)
	}
	return nil
}

// TakeLogin implements storage.LoginStore. GETDEL makes the get-and-delete a
// single server-side operation, so exactly one concurrent caller wins.
func (s *Store) TakeLogin(ctx context.Context, state string) (*storage.LoginAttempt, error) {
	key := s.prefix + loginKeyPrefix + state

	value, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrLoginNotFound
		}
		return nil, fmt.Errorf("failed to take pending login: %w", err)
	}

	var record loginRecord
	if err := s.open(value, &record); err != nil {
		return nil, err
	}

	// The key TTL normally enforces this; the check covers clock skew
	// between this process and the server.
	if time.Now().After(record.ExpiresAt) {
		return nil, storage.ErrLoginExpired
	}

	return &storage.LoginAttempt{
		State:        record.State,
		CodeVerifier: record.CodeVerifier,
		CreatedAt:    record.CreatedAt,
		ExpiresAt:    record.ExpiresAt,
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close() {
	s.client.Close()
}

// seal marshals a record and encrypts the payload when encryption is
// enabled.
func (s *Store) seal(record any) (string, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	value, err := s.encryptor.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt record: %w", err)
	}
	return value, nil
}

// open reverses seal.
func (s *Store) open(value string, record any) error {
	raw, err := s.encryptor.Decrypt(value)
	if err != nil {
		return fmt.Errorf("failed to decrypt record: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}
