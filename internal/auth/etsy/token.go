package etsy

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// TokenPair is the credential set persisted between runs. ExpiresAt is persisted when the
// token endpoint reported a lifetime; TokenType is informational.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// ErrInvalidTokenPair rejects pairs that would leave a refresh token without an access token.
var ErrInvalidTokenPair = errors.New("token pair has no access token")

// Validate reports ErrInvalidTokenPair when AccessToken is empty.
func (p TokenPair) Validate() error {
	if strings.TrimSpace(p.AccessToken) == "" {
		return ErrInvalidTokenPair
	}
	return nil
}

// Merge returns p with the refresh token of prev filled in when the provider did not rotate it.
func (p TokenPair) Merge(prev TokenPair) TokenPair {
	if p.RefreshToken == "" {
		p.RefreshToken = prev.RefreshToken
	}
	return p
}

// UserID returns the numeric user id Etsy prefixes to access tokens ("<id>.<secret>").
func (p TokenPair) UserID() string {
	id, _, found := strings.Cut(p.AccessToken, ".")
	if !found {
		return ""
	}
	return id
}

// OAuth2Token converts the pair for use with golang.org/x/oauth2 transports.
func (p TokenPair) OAuth2Token() *oauth2.Token {
	tokenType := p.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    tokenType,
		Expiry:       p.ExpiresAt,
	}
}

// parseTokenResponse maps {access_token, refresh_token, token_type, expires_in}.
func parseTokenResponse(body []byte, now time.Time) (*TokenPair, bool) {
	result := gjson.ParseBytes(body)
	access := result.Get("access_token").String()
	if access == "" {
		return nil, false
	}
	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: result.Get("refresh_token").String(),
		TokenType:    result.Get("token_type").String(),
	}
	if expiresIn := result.Get("expires_in").Int(); expiresIn > 0 {
		pair.ExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	}
	return pair, true
}

// parseOAuthErrorBody extracts an RFC 6749 error body, if the response carried one.
func parseOAuthErrorBody(body []byte, status int) *OAuthError {
	result := gjson.ParseBytes(body)
	code := result.Get("error").String()
	if code == "" {
		return nil
	}
	oauthErr := NewOAuthError(code, result.Get("error_description").String(), status)
	oauthErr.URI = result.Get("error_uri").String()
	return oauthErr
}
