package etsy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

type tokenEndpoint struct {
	status int
	body   string
	calls  atomic.Int32
	last   atomic.Pointer[url.Values]
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.calls.Add(1)
	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))
	e.last.Store(&form)
	if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		http.Error(w, "bad content type "+ct, http.StatusUnsupportedMediaType)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	_, _ = io.WriteString(w, e.body)
}

func newTestAuth(t *testing.T, endpoint *tokenEndpoint) *EtsyAuth {
	t.Helper()
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	cfg := newTestConfig()
	cfg.Etsy.TokenURL = srv.URL + "/v3/public/oauth/token"
	auth := NewEtsyAuth(cfg, nil).WithHTTPClient(srv.Client())
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return fixed }
	return auth
}

func TestExchangeCodeForTokens(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"123.abc","refresh_token":"r-1","token_type":"Bearer","expires_in":3600}`}
	auth := newTestAuth(t, endpoint)

	pair, err := auth.ExchangeCodeForTokens(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("ExchangeCodeForTokens() error = %v", err)
	}
	if pair.AccessToken != "123.abc" || pair.RefreshToken != "r-1" || pair.UserID() != "123" {
		t.Fatalf("pair = %+v", pair)
	}
	if want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC); !pair.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %s, want %s", pair.ExpiresAt, want)
	}

	form := *endpoint.last.Load()
	expected := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "client-123",
		"code":          "the-code",
		"code_verifier": "the-verifier",
		"redirect_uri":  "http://localhost:3000/callback",
	}
	for key, want := range expected {
		if got := form.Get(key); got != want {
			t.Errorf("form %s = %q, want %q", key, got, want)
		}
	}
}

func TestExchangeFailureSurfacesStatusAndBody(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusBadRequest, body: `{"error":"invalid_grant","error_description":"code was already redeemed"}`}
	auth := newTestAuth(t, endpoint)

	_, err := auth.ExchangeCodeForTokens(context.Background(), "c", "v")
	if !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("err = %v, want ErrTokenExchangeFailed", err)
	}
	if errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatal("exchange failure must not match ErrTokenRefreshFailed")
	}
	tokenErr, ok := errors.AsType[*TokenError](err)
	if !ok {
		t.Fatalf("err = %T", err)
	}
	if tokenErr.StatusCode != http.StatusBadRequest || tokenErr.Body != endpoint.body {
		t.Fatalf("tokenErr = %+v", tokenErr)
	}
	if tokenErr.OAuth == nil || tokenErr.OAuth.Code != "invalid_grant" {
		t.Fatalf("OAuth = %+v", tokenErr.OAuth)
	}
	if endpoint.calls.Load() != 1 {
		t.Fatalf("calls = %d, want exactly one attempt", endpoint.calls.Load())
	}
}

func TestExchangeTransportFailure(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig()
	cfg.Etsy.TokenURL = "http://127.0.0.1:1/token"
	auth := NewEtsyAuth(cfg, nil)

	_, err := auth.ExchangeCodeForTokens(context.Background(), "c", "v")
	tokenErr, ok := errors.AsType[*TokenError](err)
	if !ok || !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("err = %v", err)
	}
	if tokenErr.StatusCode != 0 || tokenErr.Cause == nil {
		t.Fatalf("tokenErr = %+v", tokenErr)
	}
}

func TestRefreshTokens(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`}
	auth := newTestAuth(t, endpoint)

	pair, err := auth.RefreshTokens(context.Background(), "r-old")
	if err != nil {
		t.Fatalf("RefreshTokens() error = %v", err)
	}
	if pair.AccessToken != "new-access" || pair.RefreshToken != "" {
		t.Fatalf("pair = %+v", pair)
	}
	merged := pair.Merge(TokenPair{AccessToken: "old", RefreshToken: "r-old"})
	if merged.AccessToken != "new-access" || merged.RefreshToken != "r-old" {
		t.Fatalf("merged = %+v", merged)
	}

	form := *endpoint.last.Load()
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "r-old" || form.Get("client_id") != "client-123" {
		t.Fatalf("form = %v", form)
	}
}

func TestRefreshFailure(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusUnauthorized, body: `{"error":"invalid_token"}`}
	auth := newTestAuth(t, endpoint)

	_, err := auth.RefreshTokens(context.Background(), "r-old")
	if !errors.Is(err, ErrTokenRefreshFailed) || errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("err = %v, want only ErrTokenRefreshFailed", err)
	}
	if _, err = auth.RefreshTokens(context.Background(), ""); !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("empty refresh token err = %v", err)
	}
}

func TestCompleteCallbackExchangesWithStoredVerifier(t *testing.T) {
	t.Parallel()

	endpoint := &tokenEndpoint{status: http.StatusOK, body: `{"access_token":"a","refresh_token":"r"}`}
	auth := newTestAuth(t, endpoint)

	_, session, err := auth.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err = auth.CompleteCallback(context.Background(), "code-1", session.State, "", ""); err != nil {
		t.Fatalf("CompleteCallback() error = %v", err)
	}
	if got := endpoint.last.Load().Get("code_verifier"); got != session.CodeVerifier {
		t.Fatalf("code_verifier = %q, want %q", got, session.CodeVerifier)
	}

	_, err = auth.CompleteCallback(context.Background(), "code-1", "forged", "", "")
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("err = %v, want ErrStateMismatch", err)
	}
	if endpoint.calls.Load() != 1 {
		t.Fatalf("token endpoint called %d times", endpoint.calls.Load())
	}
}
