package scraper

import (
	"fmt"
	"net/http"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
)

// Transport modes accepted by scrape.transport.
const (
	TransportStandard   = "standard"
	TransportCloudflare = "cloudflare"
	TransportUTLS       = "utls"
)

// NewTransport builds the round tripper for mode. Every mode honors the configured proxy.
func NewTransport(mode string, sdk *config.SDKConfig) (http.RoundTripper, error) {
	base := util.SetProxy(sdk, &http.Client{}).Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	switch mode {
	case "", TransportStandard:
		return base, nil
	case TransportCloudflare:
		return cloudflarebp.AddCloudFlareByPass(base), nil
	case TransportUTLS:
		return newUtlsRoundTripper(sdk), nil
	default:
		return nil, fmt.Errorf("unknown scrape transport %q", mode)
	}
}
