package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mintfolio/xauth/internal/testutil"
	"github.com/mintfolio/xauth/security"
	"github.com/mintfolio/xauth/storage"
)

func newTestStore(t *testing.T, encryptor *security.Encryptor) *Store {
	t.Helper()
	s := New(nil, encryptor)
	t.Cleanup(s.Close)
	return s
}

func TestCredentialRoundtrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	cred := testutil.ValidCredential()
	if err := s.SaveCredential(ctx, "user-1", cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	got, err := s.GetCredential(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.Token.AccessToken != cred.Token.AccessToken {
		t.Errorf("expected access token %q, got %q", cred.Token.AccessToken, got.Token.AccessToken)
	}
	if got.Token.RefreshToken != cred.Token.RefreshToken {
		t.Errorf("expected refresh token %q, got %q", cred.Token.RefreshToken, got.Token.RefreshToken)
	}
	if !got.Token.Expiry.Equal(cred.Token.Expiry) {
		t.Errorf("expected expiry %v, got %v", cred.Token.Expiry, got.Token.Expiry)
	}
	if len(got.Scopes) != len(cred.Scopes) {
		t.Errorf("expected %d scopes, got %d", len(cred.Scopes), len(got.Scopes))
	}
}

func TestGetCredentialReturnsClone(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, "user-1", testutil.ValidCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	first, _ := s.GetCredential(ctx, "user-1")
	first.Token.AccessToken = "mutated"

	second, _ := s.GetCredential(ctx, "user-1")
	if second.Token.AccessToken == "mutated" {
		t.Error("expected mutation of a returned credential to not affect the store")
	}
}

func TestGetCredentialNotFound(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.GetCredential(context.Background(), "missing")
	if !errors.Is(err, storage.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestDeleteCredentialIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, "user-1", testutil.ValidCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}
	if err := s.DeleteCredential(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	if err := s.DeleteCredential(ctx, "user-1"); err != nil {
		t.Fatalf("second DeleteCredential failed: %v", err)
	}
	if _, err := s.GetCredential(ctx, "user-1"); !errors.Is(err, storage.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound after delete, got %v", err)
	}
	if s.CredentialCount() != 0 {
		t.Errorf("expected credential count 0, got %d", s.CredentialCount())
	}
}

func TestSaveCredentialOverwrites(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, "user-1", testutil.ValidCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}
	updated := testutil.ValidCredential()
	updated.Token.AccessToken = "rotated-access-token"
	if err := s.SaveCredential(ctx, "user-1", updated); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	got, _ := s.GetCredential(ctx, "user-1")
	if got.Token.AccessToken != "rotated-access-token" {
		t.Errorf("expected overwritten token, got %q", got.Token.AccessToken)
	}
	if s.CredentialCount() != 1 {
		t.Errorf("expected credential count 1 after overwrite, got %d", s.CredentialCount())
	}
}

func TestTakeLoginConsumesOnce(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	attempt := testutil.PendingLogin("state-1", "verifier-1", time.Minute)
	if err := s.SaveLogin(ctx, attempt); err != nil {
		t.Fatalf("SaveLogin failed: %v", err)
	}

	got, err := s.TakeLogin(ctx, "state-1")
	if err != nil {
		t.Fatalf("TakeLogin failed: %v", err)
	}
	if got.CodeVerifier != "verifier-1" {
		t.Errorf("expected verifier %q, got %q", "verifier-1", got.CodeVerifier)
	}

	if _, err := s.TakeLogin(ctx, "state-1"); !errors.Is(err, storage.ErrLoginNotFound) {
		t.Errorf("expected ErrLoginNotFound on second take, got %v", err)
	}
}

func TestTakeLoginConcurrentSingleWinner(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveLogin(ctx, testutil.PendingLogin("state-1", "verifier-1", time.Minute)); err != nil {
		t.Fatalf("SaveLogin failed: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TakeLogin(ctx, "state-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	if got := len(wins); got != 1 {
		t.Errorf("expected exactly 1 winner, got %d", got)
	}
}

func TestTakeLoginExpired(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveLogin(ctx, testutil.PendingLogin("state-1", "verifier-1", -time.Minute)); err != nil {
		t.Fatalf("SaveLogin failed: %v", err)
	}

	if _, err := s.TakeLogin(ctx, "state-1"); !errors.Is(err, storage.ErrLoginExpired) {
		t.Errorf("expected ErrLoginExpired, got %v", err)
	}
	// Expired attempts are consumed too.
	if _, err := s.TakeLogin(ctx, "state-1"); !errors.Is(err, storage.ErrLoginNotFound) {
		t.Errorf("expected ErrLoginNotFound after expired take, got %v", err)
	}
}

func TestEncryptionAtRest(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}

	s := newTestStore(t, enc)
	ctx := context.Background()

	cred := testutil.ValidCredential()
	if err := s.SaveCredential(ctx, "user-1", cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	// The stored form must not contain the plaintext token.
	s.mu.RLock()
	sealed := s.credentials["user-1"]
	s.mu.RUnlock()
	if sealed.Token.AccessToken == cred.Token.AccessToken {
		t.Error("expected access token to be encrypted at rest")
	}

	got, err := s.GetCredential(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.Token.AccessToken != cred.Token.AccessToken {
		t.Errorf("expected decrypted token %q, got %q", cred.Token.AccessToken, got.Token.AccessToken)
	}
}

func TestCleanupExpiredLogins(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveLogin(ctx, testutil.PendingLogin("fresh", "v1", time.Minute)); err != nil {
		t.Fatalf("SaveLogin failed: %v", err)
	}
	if err := s.SaveLogin(ctx, testutil.PendingLogin("stale", "v2", -time.Minute)); err != nil {
		t.Fatalf("SaveLogin failed: %v", err)
	}

	s.cleanupExpiredLogins()

	if s.LoginCount() != 1 {
		t.Errorf("expected 1 pending login after cleanup, got %d", s.LoginCount())
	}
	if _, err := s.TakeLogin(ctx, "fresh"); err != nil {
		t.Errorf("expected fresh login to survive cleanup, got %v", err)
	}
}

func TestSaveCredentialValidation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, "", testutil.ValidCredential()); err == nil {
		t.Error("expected error for empty user ID")
	}
	if err := s.SaveCredential(ctx, "user-1", nil); err == nil {
		t.Error("expected error for nil credential")
	}
	if err := s.SaveCredential(ctx, "user-1", &storage.Credential{}); err == nil {
		t.Error("expected error for credential without token")
	}
}
