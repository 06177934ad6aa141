package etsy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu      sync.Mutex
	pair    TokenPair
	saves   int
	saveErr error
}

func (m *memoryStore) Save(_ context.Context, pair TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.pair = pair
	m.saves++
	return nil
}

func (m *memoryStore) Load(context.Context) (TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair, nil
}

func TestTokenSourceRefreshKeepsRefreshToken(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"fresh","expires_in":3600}`}
	auth := newTestAuth(t, endpoint)
	store := &memoryStore{pair: TokenPair{AccessToken: "stale", RefreshToken: "keep-me"}}
	source := NewTokenSource(auth, store)

	pair, err := source.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if pair.AccessToken != "fresh" || pair.RefreshToken != "keep-me" {
		t.Fatalf("pair = %+v", pair)
	}
	if store.pair != pair {
		t.Fatalf("stored = %+v, want %+v", store.pair, pair)
	}
}

func TestTokenSourceReportsPersistFailure(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"fresh","refresh_token":"r2"}`}
	auth := newTestAuth(t, endpoint)
	store := &memoryStore{pair: TokenPair{AccessToken: "stale", RefreshToken: "r1"}, saveErr: errors.New("disk full")}
	source := NewTokenSource(auth, store)

	pair, err := source.Refresh(context.Background())
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("err = %v, want ErrPersistFailed", err)
	}
	if pair.AccessToken != "fresh" {
		t.Fatalf("refreshed pair should still be returned, got %+v", pair)
	}
	current, err := source.Current(context.Background())
	if err != nil || current.AccessToken != "fresh" {
		t.Fatalf("Current() = %+v, %v", current, err)
	}
}

func TestTokenSourceRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"fresh","expires_in":3600}`}
	auth := newTestAuth(t, endpoint)
	store := &memoryStore{pair: TokenPair{AccessToken: "stale", RefreshToken: "r"}}
	source := NewTokenSource(auth, store)
	source.remember(TokenPair{AccessToken: "stale", RefreshToken: "r", ExpiresAt: auth.now().Add(-time.Minute)})

	tok, err := source.OAuth2(context.Background()).Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "fresh" || tok.TokenType != "Bearer" {
		t.Fatalf("token = %+v", tok)
	}

	// a valid cached token is served without another call
	if _, err = source.Current(context.Background()); err != nil {
		t.Fatal(err)
	}
	if endpoint.calls.Load() != 1 {
		t.Fatalf("token endpoint calls = %d, want 1", endpoint.calls.Load())
	}
}

func TestTokenSourceStoreRejectsEmptyAccessToken(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	source := NewTokenSource(NewEtsyAuth(newTestConfig(), nil), store)
	if err := source.Store(context.Background(), TokenPair{RefreshToken: "r"}); !errors.Is(err, ErrInvalidTokenPair) {
		t.Fatalf("err = %v, want ErrInvalidTokenPair", err)
	}
	if store.saves != 0 {
		t.Fatal("invalid pair must not be saved")
	}
}

func TestTokenSourceResetReloadsStore(t *testing.T) {
	t.Parallel()

	auth := newTestAuth(t, &tokenEndpoint{status: http.StatusOK, body: `{}`})
	store := &memoryStore{pair: TokenPair{AccessToken: "first", RefreshToken: "r1"}}
	source := NewTokenSource(auth, store)

	if pair, err := source.Current(context.Background()); err != nil || pair.AccessToken != "first" {
		t.Fatalf("Current() = %+v, %v", pair, err)
	}
	store.mu.Lock()
	store.pair = TokenPair{AccessToken: "second", RefreshToken: "r2"}
	store.mu.Unlock()

	if pair, _ := source.Current(context.Background()); pair.AccessToken != "first" {
		t.Fatalf("cached pair not used: %+v", pair)
	}
	source.Reset()
	if pair, _ := source.Current(context.Background()); pair.AccessToken != "second" {
		t.Fatalf("pair after Reset = %+v", pair)
	}
}

func TestTokenSourceRenew(t *testing.T) {
	t.Parallel()

	t.Run("replaces a token without known expiry", func(t *testing.T) {
		t.Parallel()
		endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"fresh","expires_in":3600}`}
		auth := newTestAuth(t, endpoint)
		store := &memoryStore{pair: TokenPair{AccessToken: "stale", RefreshToken: "r"}}
		source := NewTokenSource(auth, store)
		if pair, _ := source.Current(context.Background()); pair.AccessToken != "stale" {
			t.Fatalf("Current() = %+v", pair)
		}

		if err := source.Renew(context.Background()); err != nil {
			t.Fatalf("Renew() error = %v", err)
		}
		pair, err := source.Current(context.Background())
		if err != nil || pair.AccessToken != "fresh" || pair.ExpiresAt.IsZero() {
			t.Fatalf("Current() after Renew = %+v, %v", pair, err)
		}
		if store.pair.ExpiresAt.IsZero() {
			t.Fatal("renewed expiry not handed to the store")
		}
	})

	t.Run("save failure is not an error", func(t *testing.T) {
		t.Parallel()
		endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"fresh"}`}
		store := &memoryStore{pair: TokenPair{AccessToken: "stale", RefreshToken: "r"}, saveErr: errors.New("read-only")}
		source := NewTokenSource(newTestAuth(t, endpoint), store)
		if err := source.Renew(context.Background()); err != nil {
			t.Fatalf("Renew() error = %v", err)
		}
		if pair, _ := source.Current(context.Background()); pair.AccessToken != "fresh" {
			t.Fatalf("Current() = %+v", pair)
		}
	})

	t.Run("refresh rejected", func(t *testing.T) {
		t.Parallel()
		endpoint := &tokenEndpoint{status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`}
		store := &memoryStore{pair: TokenPair{AccessToken: "stale", RefreshToken: "r"}}
		source := NewTokenSource(newTestAuth(t, endpoint), store)
		if err := source.Renew(context.Background()); !errors.Is(err, ErrTokenRefreshFailed) {
			t.Fatalf("Renew() error = %v, want ErrTokenRefreshFailed", err)
		}
	})
}
