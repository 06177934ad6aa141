package misc

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidCallback is returned when pasted input is neither a URL nor a query string.
var ErrInvalidCallback = errors.New("invalid callback URL")

// OAuthCallback captures the parameters the provider appends to the redirect URI.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseOAuthCallback extracts OAuth parameters from a pasted callback URL, a bare
// "?code=..&state=.." query, or "host/path?..." without a scheme. Parameters may appear in
// the query or the fragment. Empty input yields (nil, nil).
func ParseOAuthCallback(input string) (*OAuthCallback, error) {
	candidate := strings.TrimSpace(input)
	if candidate == "" {
		return nil, nil
	}
	if !strings.Contains(candidate, "://") {
		switch {
		case strings.HasPrefix(candidate, "?"):
			candidate = "http://localhost/" + candidate
		case strings.ContainsAny(candidate, "/?#:"):
			candidate = "http://" + candidate
		case strings.Contains(candidate, "="):
			candidate = "http://localhost/?" + candidate
		default:
			return nil, ErrInvalidCallback
		}
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return nil, err
	}

	values := []url.Values{parsed.Query()}
	if parsed.Fragment != "" {
		if frag, errFrag := url.ParseQuery(parsed.Fragment); errFrag == nil {
			values = append(values, frag)
		}
	}
	first := func(key string) string {
		for _, v := range values {
			if s := strings.TrimSpace(v.Get(key)); s != "" {
				return s
			}
		}
		return ""
	}

	cb := &OAuthCallback{
		Code:             first("code"),
		State:            first("state"),
		Error:            first("error"),
		ErrorDescription: first("error_description"),
	}
	if cb.Error == "" && cb.ErrorDescription != "" {
		cb.Error, cb.ErrorDescription = cb.ErrorDescription, ""
	}
	if cb.Code == "" && cb.Error == "" {
		return nil, errors.New("callback URL missing code")
	}
	return cb, nil
}
