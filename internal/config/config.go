package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default endpoints and values for the Etsy Open API v3 and the supported scrape target.
const (
	DefaultEtsyAuthURL    = "https://www.etsy.com/oauth/connect"
	DefaultEtsyTokenURL   = "https://api.etsy.com/v3/public/oauth/token"
	DefaultEtsyAPIBaseURL = "https://api.etsy.com/v3/application"
	DefaultRedirectURI    = "http://localhost:3000/callback"
	DefaultCallbackPort   = 3000

	DefaultScrapeBaseURL      = "https://www.pdfdrive.com"
	DefaultUserAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultPreviewSelector    = "button#previewButtonMain"
	DefaultPreviewAttribute   = "data-preview"
	DefaultDownloadSelector   = "a.btn-user"
	DefaultConfirmPath        = "/ebook/broken"
	DefaultNonceMin           = 100
	DefaultNonceMax           = 999
	DefaultMetadataBaseURL    = "https://openlibrary.org"
	DefaultCoversBaseURL      = "https://covers.openlibrary.org"
	DefaultCredentialsFile    = ".env"
	DefaultCredentialsPrefix  = "ETSY_"
	DefaultDownloadDir        = "downloads"
	DefaultSessionTTLSeconds  = 600
	DefaultMaxPendingSessions = 1
	DefaultMetadataCacheTTL   = 6 * time.Hour
)

// DefaultScopes are the Etsy permissions requested by the listing flow.
var DefaultScopes = []string{"shops_r", "shops_w", "listings_r", "listings_w", "listings_d"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Host is the network host/interface the API server binds to. Empty binds all interfaces.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`
	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`
	// LogsMaxTotalSizeMB limits the total size (in MB) of log files under the logs directory.
	// When exceeded, the oldest log files are deleted until within the limit. Set to 0 to disable.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	// CredentialsFile is the KEY=VALUE file holding the marketplace tokens.
	CredentialsFile string `yaml:"credentials-file" json:"credentials-file"`
	// CredentialsPrefix is prepended to ACCESS_TOKEN / REFRESH_TOKEN keys.
	CredentialsPrefix string `yaml:"credentials-prefix" json:"credentials-prefix"`

	// DownloadDir is where fetched PDFs are written.
	DownloadDir string `yaml:"download-dir" json:"download-dir"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors-origins" json:"cors-origins"`

	Etsy     EtsyConfig     `yaml:"etsy" json:"etsy"`
	OAuth    OAuthConfig    `yaml:"oauth" json:"oauth"`
	Scrape   ScrapeConfig   `yaml:"scrape" json:"scrape"`
	Metadata MetadataConfig `yaml:"metadata" json:"metadata"`
	Listing  ListingConfig  `yaml:"listing" json:"listing"`
	Archive  ArchiveConfig  `yaml:"archive" json:"archive"`
}

// EtsyConfig holds marketplace OAuth client settings.
type EtsyConfig struct {
	ClientID     string   `yaml:"client-id" json:"-"`
	APIKey       string   `yaml:"api-key" json:"-"`
	ShopID       string   `yaml:"shop-id" json:"shop-id"`
	RedirectURI  string   `yaml:"redirect-uri" json:"redirect-uri"`
	AuthURL      string   `yaml:"auth-url" json:"auth-url"`
	TokenURL     string   `yaml:"token-url" json:"token-url"`
	APIBaseURL   string   `yaml:"api-base-url" json:"api-base-url"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
	CallbackPort int      `yaml:"callback-port" json:"callback-port"`
}

// OAuthConfig controls pending authorization attempts.
type OAuthConfig struct {
	// MaxPendingSessions caps concurrently pending authorizations. 1 means a new attempt
	// invalidates the previous one.
	MaxPendingSessions int `yaml:"max-pending-sessions" json:"max-pending-sessions"`
	SessionTTLSeconds  int `yaml:"session-ttl-seconds" json:"session-ttl-seconds"`
}

// ScrapeConfig describes the structural contract with the scrape target site.
// Transport is one of "standard", "cloudflare" or "utls".
type ScrapeConfig struct {
	BaseURL          string `yaml:"base-url" json:"base-url"`
	UserAgent        string `yaml:"user-agent" json:"user-agent"`
	Transport        string `yaml:"transport" json:"transport"`
	PreviewSelector  string `yaml:"preview-selector" json:"preview-selector"`
	PreviewAttribute string `yaml:"preview-attribute" json:"preview-attribute"`
	DownloadSelector string `yaml:"download-selector" json:"download-selector"`
	ConfirmPath      string `yaml:"confirm-path" json:"confirm-path"`
	NonceMin         int    `yaml:"nonce-min" json:"nonce-min"`
	NonceMax         int    `yaml:"nonce-max" json:"nonce-max"`
}

// MetadataConfig points at the book metadata service.
type MetadataConfig struct {
	BaseURL   string `yaml:"base-url" json:"base-url"`
	CoversURL string `yaml:"covers-url" json:"covers-url"`
	// CacheTTLSeconds keeps search results in memory. 0 uses the default, negative disables.
	CacheTTLSeconds int `yaml:"cache-ttl-seconds" json:"cache-ttl-seconds"`
}

// CacheTTL returns how long search results stay cached, or zero when caching is off.
func (m MetadataConfig) CacheTTL() time.Duration {
	switch {
	case m.CacheTTLSeconds < 0:
		return 0
	case m.CacheTTLSeconds == 0:
		return DefaultMetadataCacheTTL
	}
	return time.Duration(m.CacheTTLSeconds) * time.Second
}

// ListingConfig holds defaults applied to every created listing.
type ListingConfig struct {
	Price      float64  `yaml:"price" json:"price"`
	Currency   string   `yaml:"currency" json:"currency"`
	Quantity   int      `yaml:"quantity" json:"quantity"`
	TaxonomyID int      `yaml:"taxonomy-id" json:"taxonomy-id"`
	WhoMade    string   `yaml:"who-made" json:"who-made"`
	WhenMade   string   `yaml:"when-made" json:"when-made"`
	State      string   `yaml:"state" json:"state"`
	Materials  []string `yaml:"materials" json:"materials"`
	Tags       []string `yaml:"tags" json:"tags"`
}

// ArchiveConfig enables mirroring fetched PDFs to S3-compatible storage.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access-key" json:"-"`
	SecretKey string `yaml:"secret-key" json:"-"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
}

// Enabled reports whether enough settings are present to create an archive client.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != "" && strings.TrimSpace(a.Bucket) != ""
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads the YAML file at path and applies defaults and environment overrides.
// A missing file is not an error: defaults and environment still apply.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with built-in defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = DefaultCredentialsFile
	}
	if c.CredentialsPrefix == "" {
		c.CredentialsPrefix = DefaultCredentialsPrefix
	}
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:8000", "http://localhost:3000", "http://127.0.0.1:8000"}
	}

	e := &c.Etsy
	setString(&e.RedirectURI, DefaultRedirectURI)
	setString(&e.AuthURL, DefaultEtsyAuthURL)
	setString(&e.TokenURL, DefaultEtsyTokenURL)
	setString(&e.APIBaseURL, DefaultEtsyAPIBaseURL)
	if len(e.Scopes) == 0 {
		e.Scopes = append([]string(nil), DefaultScopes...)
	}
	if e.CallbackPort == 0 {
		e.CallbackPort = DefaultCallbackPort
	}

	if c.OAuth.MaxPendingSessions <= 0 {
		c.OAuth.MaxPendingSessions = DefaultMaxPendingSessions
	}
	if c.OAuth.SessionTTLSeconds <= 0 {
		c.OAuth.SessionTTLSeconds = DefaultSessionTTLSeconds
	}

	s := &c.Scrape
	setString(&s.BaseURL, DefaultScrapeBaseURL)
	setString(&s.UserAgent, DefaultUserAgent)
	setString(&s.Transport, "standard")
	setString(&s.PreviewSelector, DefaultPreviewSelector)
	setString(&s.PreviewAttribute, DefaultPreviewAttribute)
	setString(&s.DownloadSelector, DefaultDownloadSelector)
	setString(&s.ConfirmPath, DefaultConfirmPath)
	if s.NonceMin <= 0 && s.NonceMax <= 0 {
		s.NonceMin, s.NonceMax = DefaultNonceMin, DefaultNonceMax
	}

	setString(&c.Metadata.BaseURL, DefaultMetadataBaseURL)
	setString(&c.Metadata.CoversURL, DefaultCoversBaseURL)

	l := &c.Listing
	if l.Price <= 0 {
		l.Price = 4.99
	}
	setString(&l.Currency, "USD")
	if l.Quantity <= 0 {
		l.Quantity = 999
	}
	if l.TaxonomyID == 0 {
		l.TaxonomyID = 2078
	}
	setString(&l.WhoMade, "someone_else")
	setString(&l.WhenMade, "2020_2025")
	setString(&l.State, "draft")
	if len(l.Materials) == 0 {
		l.Materials = []string{"digital", "PDF"}
	}
	if len(l.Tags) == 0 {
		l.Tags = []string{"ebook", "pdf", "digital download"}
	}
}

// ApplyEnv overrides settings from environment variables using the supplied lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}
	if v, ok := get("ETSY_CLIENT_ID", "ETSY_API_KEY"); ok {
		c.Etsy.ClientID = v
	}
	if v, ok := get("ETSY_API_KEY", "ETSY_CLIENT_ID"); ok {
		c.Etsy.APIKey = v
	}
	if v, ok := get("ETSY_SHOP_ID"); ok {
		c.Etsy.ShopID = v
	}
	if v, ok := get("REDIRECT_URI"); ok {
		c.Etsy.RedirectURI = v
	}
	if v, ok := get("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v, ok := get("PROXY_URL", "proxy_url"); ok {
		c.ProxyURL = v
	}
	if v, ok := get("OBJECTSTORE_ENDPOINT"); ok {
		c.Archive.Endpoint = v
	}
	if v, ok := get("OBJECTSTORE_BUCKET"); ok {
		c.Archive.Bucket = v
	}
	if v, ok := get("OBJECTSTORE_ACCESS_KEY"); ok {
		c.Archive.AccessKey = v
	}
	if v, ok := get("OBJECTSTORE_SECRET_KEY"); ok {
		c.Archive.SecretKey = v
	}
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Scrape.NonceMin > c.Scrape.NonceMax {
		return fmt.Errorf("scrape nonce-min %d exceeds nonce-max %d", c.Scrape.NonceMin, c.Scrape.NonceMax)
	}
	switch c.Scrape.Transport {
	case "standard", "cloudflare", "utls":
	default:
		return fmt.Errorf("unknown scrape transport %q", c.Scrape.Transport)
	}
	return nil
}

func setString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}
