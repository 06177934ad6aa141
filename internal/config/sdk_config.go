// Package config provides configuration management for the ebook lister.
// It handles loading and parsing YAML configuration files, applying environment
// overrides, and provides structured access to marketplace, scraping, and storage settings.
package config

import "time"

// SDKConfig holds settings shared by every outbound HTTP client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supports socks5://, http:// and https:// schemes.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// RequestTimeoutSeconds bounds every outbound request. <= 0 keeps the transport default.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds,omitempty" json:"request-timeout-seconds,omitempty"`
}

// RequestTimeout returns the configured outbound timeout, or zero when unset.
func (c *SDKConfig) RequestTimeout() time.Duration {
	if c == nil || c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
