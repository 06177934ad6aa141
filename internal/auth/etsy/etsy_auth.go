package etsy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
	log "github.com/sirupsen/logrus"
)

// EtsyAuth handles the Etsy OAuth2 authorization-code flow with PKCE.
// It owns the pending session store and performs the code and refresh-token grants.
type EtsyAuth struct {
	httpClient *http.Client
	cfg        config.EtsyConfig
	sessions   *SessionStore
	now        func() time.Time
}

// NewEtsyAuth creates a new Etsy authentication service. The HTTP client honors the
// configured proxy and request timeout.
//
// Parameters:
//   - cfg: The application configuration
//   - sessions: The pending session store; a new one is created when nil
//
// Returns:
//   - *EtsyAuth: A new authentication service instance
func NewEtsyAuth(cfg *config.Config, sessions *SessionStore) *EtsyAuth {
	if sessions == nil {
		sessions = NewSessionStore(cfg)
	}
	return &EtsyAuth{
		httpClient: util.NewHTTPClient(&cfg.SDKConfig),
		cfg:        cfg.Etsy,
		sessions:   sessions,
		now:        time.Now,
	}
}

// WithHTTPClient replaces the client used for token endpoint calls.
func (o *EtsyAuth) WithHTTPClient(client *http.Client) *EtsyAuth {
	if client != nil {
		o.httpClient = client
	}
	return o
}

// Begin starts a new authorization attempt. See SessionStore.Begin.
func (o *EtsyAuth) Begin() (string, *Session, error) {
	return o.sessions.Begin()
}

// BuildAuthURL renders the provider authorization URL. Scopes are space separated.
func BuildAuthURL(cfg config.EtsyConfig, state, challenge string) string {
	params := []struct{ key, value string }{
		{"response_type", "code"},
		{"redirect_uri", cfg.RedirectURI},
		{"client_id", cfg.ClientID},
		{"scope", strings.Join(cfg.Scopes, " ")},
		{"code_challenge_method", "S256"},
		{"code_challenge", challenge},
		{"state", state},
	}
	var b strings.Builder
	b.WriteString(cfg.AuthURL)
	for i, p := range params {
		if i == 0 && !strings.Contains(cfg.AuthURL, "?") {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(p.value), "+", "%20"))
	}
	return b.String()
}

// CompleteCallback validates the callback against pending sessions and exchanges the code.
func (o *EtsyAuth) CompleteCallback(ctx context.Context, code, state, providerErr, description string) (*TokenPair, error) {
	code, verifier, err := o.sessions.CompleteWithDescription(code, state, providerErr, description)
	if err != nil {
		return nil, err
	}
	return o.ExchangeCodeForTokens(ctx, code, verifier)
}

// ExchangeCodeForTokens exchanges an authorization code and its PKCE verifier for tokens.
// It makes exactly one request; failures are returned as *TokenError matching ErrTokenExchangeFailed.
func (o *EtsyAuth) ExchangeCodeForTokens(ctx context.Context, code, verifier string) (*TokenPair, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {o.cfg.ClientID},
		"redirect_uri":  {o.cfg.RedirectURI},
		"code":          {code},
		"code_verifier": {verifier},
	}
	return o.postToken(ctx, opExchange, form)
}

// RefreshTokens obtains a new access token. The returned pair carries an empty RefreshToken
// when the provider did not rotate it; callers merge with the stored pair.
func (o *EtsyAuth) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, &TokenError{Op: opRefresh, Cause: errors.New("refresh token is required")}
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {o.cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	return o.postToken(ctx, opRefresh, form)
}

func (o *EtsyAuth) postToken(ctx context.Context, op string, form url.Values) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TokenError{Op: op, Cause: fmt.Errorf("failed to create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, &TokenError{Op: op, Cause: err}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TokenError{Op: op, StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to read token response: %w", err)}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		tokenErr := &TokenError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
		tokenErr.OAuth = parseOAuthErrorBody(body, resp.StatusCode)
		return nil, tokenErr
	}

	pair, ok := parseTokenResponse(body, o.now())
	if !ok {
		return nil, &TokenError{Op: op, StatusCode: resp.StatusCode, Body: string(body), Cause: errors.New("response has no access_token")}
	}
	log.Debugf("token %s succeeded, expires at %s", op, pair.ExpiresAt.Format(time.RFC3339))
	return pair, nil
}
