package util

import (
	"context"
	"net"
	"net/http"
	"net/url"

	"github.com/ebooklister/ebooklister/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// NewHTTPClient returns an http.Client honoring the configured proxy and request timeout.
func NewHTTPClient(cfg *config.SDKConfig) *http.Client {
	client := &http.Client{}
	if cfg == nil {
		return client
	}
	client.Timeout = cfg.RequestTimeout()
	return SetProxy(cfg, client)
}

// SetProxy configures the provided HTTP client with proxy settings from the configuration.
// It supports SOCKS5, HTTP, and HTTPS proxies. The function modifies the client's transport
// to route requests through the configured proxy server.
func SetProxy(cfg *config.SDKConfig, httpClient *http.Client) *http.Client {
	if cfg == nil || cfg.ProxyURL == "" {
		return httpClient
	}
	var transport *http.Transport
	proxyURL, errParse := url.Parse(cfg.ProxyURL)
	if errParse != nil {
		log.Errorf("parse proxy URL %q failed: %v", cfg.ProxyURL, errParse)
		return httpClient
	}
	switch proxyURL.Scheme {
	case "socks5":
		dialer, errDialer := ProxyDialer(cfg)
		if errDialer != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errDialer)
			return httpClient
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	default:
		log.Warnf("unsupported proxy scheme %q; using direct connection", proxyURL.Scheme)
	}
	if transport != nil {
		httpClient.Transport = transport
	}
	return httpClient
}

// ProxyDialer returns a dialer routed through the configured proxy, or proxy.Direct.
func ProxyDialer(cfg *config.SDKConfig) (proxy.Dialer, error) {
	if cfg == nil || cfg.ProxyURL == "" {
		return proxy.Direct, nil
	}
	proxyURL, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	return proxy.FromURL(proxyURL, proxy.Direct)
}
