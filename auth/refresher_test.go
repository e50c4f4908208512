package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/oauth2"

	"github.com/mintfolio/xauth/instrumentation"
	"github.com/mintfolio/xauth/internal/testutil"
	platformmock "github.com/mintfolio/xauth/platform/mock"
	"github.com/mintfolio/xauth/storage"
	storagemock "github.com/mintfolio/xauth/storage/mock"
)

func newTestRefresher(t *testing.T, store *storagemock.Store, client *platformmock.Client) *Refresher {
	t.Helper()
	r, err := NewRefresher(&RefresherConfig{
		Store:    store,
		Platform: client,
	})
	if err != nil {
		t.Fatalf("NewRefresher failed: %v", err)
	}
	return r
}

func TestEnsureValidNotAuthenticated(t *testing.T) {
	r := newTestRefresher(t, storagemock.New(), platformmock.NewClient())

	_, err := r.EnsureValid(context.Background(), "unknown-user")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestEnsureValidReturnsFreshCredentialWithoutRefresh(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()

	cred := testutil.ValidCredential()
	if err := store.SaveCredential(ctx, "user-1", cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	got, err := r.EnsureValid(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}

	if got.Token.AccessToken != cred.Token.AccessToken {
		t.Errorf("expected stored token, got %q", got.Token.AccessToken)
	}
	if client.Calls("RefreshToken") != 0 {
		t.Errorf("expected no refresh for a fresh credential, got %d", client.Calls("RefreshToken"))
	}
}

func TestEnsureValidRefreshesExpiredCredential(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()

	if err := store.SaveCredential(ctx, "user-1", testutil.ExpiredCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	got, err := r.EnsureValid(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}

	if got.Token.AccessToken != "new-mock-access-token" {
		t.Errorf("expected refreshed token, got %q", got.Token.AccessToken)
	}
	if client.Calls("RefreshToken") != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", client.Calls("RefreshToken"))
	}

	// The refreshed credential must be persisted.
	stored, err := store.GetCredential(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if stored.Token.AccessToken != "new-mock-access-token" {
		t.Errorf("expected refreshed token persisted, got %q", stored.Token.AccessToken)
	}
}

func TestEnsureValidRefreshesInsideMargin(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()

	// Not yet expired, but inside the 60 second margin.
	cred := testutil.ValidCredential()
	cred.Token.Expiry = time.Now().Add(30 * time.Second)
	if err := store.SaveCredential(ctx, "user-1", cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	if _, err := r.EnsureValid(ctx, "user-1"); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if client.Calls("RefreshToken") != 1 {
		t.Errorf("expected proactive refresh inside margin, got %d calls", client.Calls("RefreshToken"))
	}
}

func TestEnsureValidRevokedRefreshTokenDeletesCredential(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	client.RefreshTokenFunc = func(_ context.Context, _ string) (*oauth2.Token, error) {
		return nil, fmt.Errorf("failed to refresh token: %w", &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: http.StatusBadRequest},
			ErrorCode: "invalid_grant",
		})
	}
	ctx := context.Background()

	if err := store.SaveCredential(ctx, "user-1", testutil.ExpiredCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	_, err := r.EnsureValid(ctx, "user-1")
	if !errors.Is(err, ErrReauthorizationRequired) {
		t.Fatalf("expected ErrReauthorizationRequired, got %v", err)
	}

	// The dead credential is discarded; the user is no longer authenticated.
	if _, err := store.GetCredential(ctx, "user-1"); !errors.Is(err, storage.ErrCredentialNotFound) {
		t.Errorf("expected credential to be deleted, got %v", err)
	}
	if _, err := r.EnsureValid(ctx, "user-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated after discard, got %v", err)
	}
}

func TestEnsureValidMissingRefreshTokenRequiresReauthorization(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()

	cred := testutil.ExpiredCredential()
	cred.Token.RefreshToken = ""
	if err := store.SaveCredential(ctx, "user-1", cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	_, err := r.EnsureValid(ctx, "user-1")
	if !errors.Is(err, ErrReauthorizationRequired) {
		t.Errorf("expected ErrReauthorizationRequired, got %v", err)
	}
	if client.Calls("RefreshToken") != 0 {
		t.Errorf("expected no platform call without a refresh token, got %d", client.Calls("RefreshToken"))
	}
}

func TestRefreshKeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	client.RefreshTokenFunc = func(_ context.Context, _ string) (*oauth2.Token, error) {
		// Platform refreshed the access token but omitted the refresh token.
		return &oauth2.Token{
			AccessToken: "rotated-access",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(2 * time.Hour),
		}, nil
	}
	ctx := context.Background()

	if err := store.SaveCredential(ctx, "user-1", testutil.ExpiredCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	got, err := r.EnsureValid(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if got.Token.RefreshToken != "test-refresh-token" {
		t.Errorf("expected old refresh token to be kept, got %q", got.Token.RefreshToken)
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()

	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	var once sync.Once
	client.RefreshTokenFunc = func(_ context.Context, _ string) (*oauth2.Token, error) {
		once.Do(func() { close(refreshStarted) })
		<-releaseRefresh
		return &oauth2.Token{
			AccessToken:  "coalesced-access",
			TokenType:    "Bearer",
			RefreshToken: "coalesced-refresh",
			Expiry:       time.Now().Add(2 * time.Hour),
		}, nil
	}

	if err := store.SaveCredential(ctx, "user-1", testutil.ExpiredCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	errs := make(chan error, callers)

	// First caller holds the flight open until the rest have queued.
	wg.Add(1)
	go func() {
		defer wg.Done()
		cred, err := r.EnsureValid(ctx, "user-1")
		if err != nil {
			errs <- err
			return
		}
		results <- cred.Token.AccessToken
	}()
	<-refreshStarted

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := r.EnsureValid(ctx, "user-1")
			if err != nil {
				errs <- err
				return
			}
			results <- cred.Token.AccessToken
		}()
	}

	// Give the queued callers a moment to join the flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(releaseRefresh)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	for token := range results {
		if token != "coalesced-access" {
			t.Errorf("expected every caller to see the coalesced token, got %q", token)
		}
	}
	if got := client.Calls("RefreshToken"); got != 1 {
		t.Errorf("expected 1 coalesced refresh, got %d", got)
	}
}

func TestRefreshRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := instrumentation.NewTracerProvider("xauth-test")
	if err != nil {
		t.Fatalf("NewTracerProvider failed: %v", err)
	}
	tp.RegisterSpanProcessor(recorder)
	instr, err := instrumentation.New(&instrumentation.Config{TracerProvider: tp})
	if err != nil {
		t.Fatalf("instrumentation.New failed: %v", err)
	}

	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()
	if err := store.SaveCredential(ctx, "user-1", testutil.ExpiredCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r, err := NewRefresher(&RefresherConfig{
		Store:    store,
		Platform: client,
		Instr:    instr,
	})
	if err != nil {
		t.Fatalf("NewRefresher failed: %v", err)
	}

	if _, err := r.EnsureValid(ctx, "user-1"); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 refresh span, got %d", len(spans))
	}
	if spans[0].Name() != "auth.refresh" {
		t.Errorf("expected span name auth.refresh, got %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected refresh span to be Ok, got %v", spans[0].Status().Code)
	}
}

func TestForceRefreshIgnoresFreshness(t *testing.T) {
	store := storagemock.New()
	client := platformmock.NewClient()
	ctx := context.Background()

	if err := store.SaveCredential(ctx, "user-1", testutil.ValidCredential()); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	r := newTestRefresher(t, store, client)
	got, err := r.ForceRefresh(ctx, "user-1")
	if err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}
	if got.Token.AccessToken != "new-mock-access-token" {
		t.Errorf("expected forced refresh to replace a fresh token, got %q", got.Token.AccessToken)
	}
	if client.Calls("RefreshToken") != 1 {
		t.Errorf("expected 1 refresh, got %d", client.Calls("RefreshToken"))
	}
}
