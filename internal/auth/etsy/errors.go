package etsy

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the authorization flow. Match them with errors.Is.
var (
	// ErrProviderError means the provider redirected back with an error parameter.
	ErrProviderError = errors.New("authorization provider returned an error")
	// ErrMissingCode means the callback carried neither an error nor a code.
	ErrMissingCode = errors.New("no authorization code received")
	// ErrStateMismatch means no pending, unexpired session has the returned state.
	ErrStateMismatch = errors.New("invalid state parameter")
	// ErrTokenExchangeFailed wraps every failed authorization_code grant.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrTokenRefreshFailed wraps every failed refresh_token grant.
	ErrTokenRefreshFailed = errors.New("token refresh failed")
)

// OAuthError represents an OAuth error reported by the provider, either on the redirect or
// in a token endpoint response body.
type OAuthError struct {
	// Code is the OAuth error code, e.g. access_denied.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// URI is a URI identifying a human-readable web page with information about the error.
	URI string `json:"error_uri,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// Is makes every OAuthError match ErrProviderError.
func (e *OAuthError) Is(target error) bool {
	return target == ErrProviderError
}

// NewOAuthError creates a new OAuth error with the specified code, description, and status code.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		StatusCode:  statusCode,
	}
}

// TokenError reports a failed call to the token endpoint. StatusCode and Body are zero when
// the request never produced a response.
type TokenError struct {
	// Op is "exchange" or "refresh".
	Op         string
	StatusCode int
	Body       string
	// OAuth is the decoded error body, when the endpoint returned one.
	OAuth      *OAuthError
	Cause      error
}

func (e *TokenError) Error() string {
	base := ErrTokenExchangeFailed.Error()
	if e.Op == opRefresh {
		base = ErrTokenRefreshFailed.Error()
	}
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s with status %d: %s", base, e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", base, e.Cause)
	default:
		return base
	}
}

// Is matches ErrTokenExchangeFailed or ErrTokenRefreshFailed depending on Op.
func (e *TokenError) Is(target error) bool {
	switch target {
	case ErrTokenExchangeFailed:
		return e.Op != opRefresh
	case ErrTokenRefreshFailed:
		return e.Op == opRefresh
	}
	return false
}

func (e *TokenError) Unwrap() error { return e.Cause }

const (
	opExchange = "exchange"
	opRefresh  = "refresh"
)

// AuthenticationError represents failures of the interactive login flow.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code or process exit code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// Common authentication error types.
var (
	// ErrServerStartFailed represents an error when starting the OAuth callback server fails.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start OAuth callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortInUse represents an error when the OAuth callback port is already in use.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    13,
	}

	// ErrCallbackTimeout represents an error when waiting for OAuth callback times out.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}

	// ErrBrowserOpenFailed represents an error when the authorization page cannot be opened.
	ErrBrowserOpenFailed = &AuthenticationError{
		Type:    "browser_open_failed",
		Message: "Failed to open the authorization page",
		Code:    http.StatusInternalServerError,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// GetUserFriendlyMessage returns a message suitable for the terminal or an HTTP response.
func GetUserFriendlyMessage(err error) string {
	if authErr, ok := errors.AsType[*AuthenticationError](err); ok {
		switch authErr.Type {
		case "port_in_use":
			return "The OAuth callback port is already in use. Close the application using it or pass -oauth-callback-port."
		case "callback_timeout":
			return "Authentication timed out. Please try again."
		case "browser_open_failed":
			return "Could not open your browser automatically. Please copy and paste the URL manually."
		default:
			return "Authentication failed. Please try again."
		}
	}
	if oauthErr, ok := errors.AsType[*OAuthError](err); ok {
		switch oauthErr.Code {
		case "access_denied":
			return "Authentication was cancelled or denied."
		case "invalid_request":
			return "Invalid authentication request. Please try again."
		case "server_error":
			return "Authentication server error. Please try again later."
		default:
			if oauthErr.Description != "" {
				return fmt.Sprintf("Authentication failed: %s", oauthErr.Description)
			}
			return fmt.Sprintf("Authentication failed: %s", oauthErr.Code)
		}
	}
	switch {
	case errors.Is(err, ErrStateMismatch):
		return "The authorization response does not match a pending login. Start the login again."
	case errors.Is(err, ErrMissingCode):
		return "No authorization code was received."
	case errors.Is(err, ErrTokenRefreshFailed):
		return "Could not refresh the access token. Please log in again."
	case errors.Is(err, ErrTokenExchangeFailed):
		return "Could not exchange the authorization code for tokens."
	}
	return "An unexpected error occurred. Please try again."
}
