// Package misc holds small helpers shared by the CLI and HTTP clients: callback parsing,
// header defaults, clipboard access and config templating.
package misc

import (
	"net/http"
	"strings"
)

// EnsureHeader sets key on target, preferring a non-empty value from source, then any value
// already on target, then defaultValue. Blank values are never written.
func EnsureHeader(target http.Header, source http.Header, key, defaultValue string) {
	if target == nil {
		return
	}
	if source != nil {
		if val := strings.TrimSpace(source.Get(key)); val != "" {
			target.Set(key, val)
			return
		}
	}
	if strings.TrimSpace(target.Get(key)) != "" {
		return
	}
	if val := strings.TrimSpace(defaultValue); val != "" {
		target.Set(key, val)
	}
}

// EnsureHeaders applies EnsureHeader for every entry in defaults.
func EnsureHeaders(target http.Header, source http.Header, defaults map[string]string) {
	for key, value := range defaults {
		EnsureHeader(target, source, key, value)
	}
}
