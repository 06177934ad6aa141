// diff.go computes human-readable diffs for config field changes.
package watcher

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/ebooklister/ebooklister/internal/config"
)

// BuildConfigChangeDetails computes a redacted, human-readable list of config changes.
// Secrets are reported as updated and never printed.
func BuildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	changes := make([]string, 0, 16)
	if oldCfg == nil || newCfg == nil {
		return changes
	}
	add := func(format string, args ...any) {
		changes = append(changes, fmt.Sprintf(format, args...))
	}

	if oldCfg.Port != newCfg.Port {
		add("port: %d -> %d", oldCfg.Port, newCfg.Port)
	}
	if oldCfg.Host != newCfg.Host {
		add("host: %s -> %s", oldCfg.Host, newCfg.Host)
	}
	if oldCfg.Debug != newCfg.Debug {
		add("debug: %t -> %t", oldCfg.Debug, newCfg.Debug)
	}
	if oldCfg.LoggingToFile != newCfg.LoggingToFile {
		add("logging-to-file: %t -> %t", oldCfg.LoggingToFile, newCfg.LoggingToFile)
	}
	if oldCfg.ProxyURL != newCfg.ProxyURL {
		add("proxy-url: %s -> %s", formatProxyURL(oldCfg.ProxyURL), formatProxyURL(newCfg.ProxyURL))
	}
	if oldCfg.RequestTimeoutSeconds != newCfg.RequestTimeoutSeconds {
		add("request-timeout-seconds: %d -> %d", oldCfg.RequestTimeoutSeconds, newCfg.RequestTimeoutSeconds)
	}
	if oldCfg.DownloadDir != newCfg.DownloadDir {
		add("download-dir: %s -> %s", oldCfg.DownloadDir, newCfg.DownloadDir)
	}
	if oldCfg.CredentialsFile != newCfg.CredentialsFile {
		add("credentials-file: %s -> %s (restart required)", oldCfg.CredentialsFile, newCfg.CredentialsFile)
	}
	if !slices.Equal(oldCfg.CORSOrigins, newCfg.CORSOrigins) {
		add("cors-origins: updated (%d -> %d entries)", len(oldCfg.CORSOrigins), len(newCfg.CORSOrigins))
	}

	oe, ne := oldCfg.Etsy, newCfg.Etsy
	if oe.ClientID != ne.ClientID {
		add("etsy.client-id: updated")
	}
	if oe.APIKey != ne.APIKey {
		add("etsy.api-key: updated")
	}
	if oe.ShopID != ne.ShopID {
		add("etsy.shop-id: %s -> %s", oe.ShopID, ne.ShopID)
	}
	if oe.RedirectURI != ne.RedirectURI {
		add("etsy.redirect-uri: %s -> %s", oe.RedirectURI, ne.RedirectURI)
	}
	if !slices.Equal(oe.Scopes, ne.Scopes) {
		add("etsy.scopes: %s -> %s", strings.Join(oe.Scopes, " "), strings.Join(ne.Scopes, " "))
	}

	if oldCfg.OAuth != newCfg.OAuth {
		add("oauth: max-pending-sessions %d -> %d, session-ttl-seconds %d -> %d",
			oldCfg.OAuth.MaxPendingSessions, newCfg.OAuth.MaxPendingSessions,
			oldCfg.OAuth.SessionTTLSeconds, newCfg.OAuth.SessionTTLSeconds)
	}

	oldScrape, newScrape := oldCfg.Scrape, newCfg.Scrape
	if oldScrape.BaseURL != newScrape.BaseURL {
		add("scrape.base-url: %s -> %s (restart required)", oldScrape.BaseURL, newScrape.BaseURL)
	}
	if oldScrape.Transport != newScrape.Transport {
		add("scrape.transport: %s -> %s (restart required)", oldScrape.Transport, newScrape.Transport)
	}
	if oldScrape.PreviewSelector != newScrape.PreviewSelector || oldScrape.PreviewAttribute != newScrape.PreviewAttribute ||
		oldScrape.DownloadSelector != newScrape.DownloadSelector || oldScrape.ConfirmPath != newScrape.ConfirmPath {
		add("scrape.selectors: updated (restart required)")
	}
	if oldScrape.NonceMin != newScrape.NonceMin || oldScrape.NonceMax != newScrape.NonceMax {
		add("scrape.nonce: %d-%d -> %d-%d (restart required)", oldScrape.NonceMin, oldScrape.NonceMax, newScrape.NonceMin, newScrape.NonceMax)
	}

	if oldCfg.Metadata != newCfg.Metadata {
		add("metadata: updated (restart required)")
	}

	ol, nl := oldCfg.Listing, newCfg.Listing
	if ol.Price != nl.Price || ol.Currency != nl.Currency {
		add("listing.price: %.2f %s -> %.2f %s", ol.Price, ol.Currency, nl.Price, nl.Currency)
	}
	if !slices.Equal(ol.Tags, nl.Tags) {
		add("listing.tags: updated (%d -> %d entries)", len(ol.Tags), len(nl.Tags))
	}

	if oldCfg.Archive.Endpoint != newCfg.Archive.Endpoint || oldCfg.Archive.Bucket != newCfg.Archive.Bucket {
		add("archive: %s/%s -> %s/%s", oldCfg.Archive.Endpoint, oldCfg.Archive.Bucket, newCfg.Archive.Endpoint, newCfg.Archive.Bucket)
	}
	if oldCfg.Archive.AccessKey != newCfg.Archive.AccessKey || oldCfg.Archive.SecretKey != newCfg.Archive.SecretKey {
		add("archive.credentials: updated")
	}
	return changes
}

func formatProxyURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "<none>"
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "<redacted>"
	}
	host := parsed.Host
	if host == "" {
		return "<redacted>"
	}
	if parsed.Scheme == "" {
		return host
	}
	return parsed.Scheme + "://" + host
}
