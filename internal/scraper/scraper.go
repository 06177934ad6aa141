// Package scraper resolves a book page on the source site into a direct PDF download URL.
//
// Resolution walks Start → PageFetched → ParamsExtracted → ConfirmFetched → LinkResolved:
// the page's title and preview session are read, the site's confirmation page is requested
// with those identifiers and a nonce, and the download button's href is resolved against the
// page origin. Any missing element ends the attempt with a typed error.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/misc"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// maxErrorBody bounds how much of a failed response is kept in FetchError.Body.
const maxErrorBody = 64 << 10

// Target is the outcome of a successful resolution. It is built per request and never cached.
type Target struct {
	SourceURL   string
	Title       string
	Params      SessionParams
	DownloadURL string
}

// Resolver turns a book page URL into a downloadable Target.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (*Target, error)
}

// NonceFunc produces the r parameter of the confirmation URL.
type NonceFunc func() int

// UniformNonce returns a NonceFunc drawing uniformly from [min, max].
func UniformNonce(min, max int) NonceFunc {
	if max < min {
		min, max = max, min
	}
	return func() int { return min + rand.IntN(max-min+1) }
}

// Client holds one cookie-carrying HTTP session with the source site.
type Client struct {
	http      *resty.Client
	baseURL   *url.URL
	userAgent string
	confirm   string
	extractor Extractor
	nonce     NonceFunc
}

// Option customizes a Client.
type Option func(*Client)

// WithNonceFunc replaces the confirmation nonce generator.
func WithNonceFunc(fn NonceFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.nonce = fn
		}
	}
}

// WithTransport replaces the HTTP transport, e.g. with an httptest server's.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.http.SetTransport(rt)
		}
	}
}

// NewClient builds a scraping client from the scrape and proxy settings in cfg.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	sc := cfg.Scrape
	baseURL, err := url.Parse(sc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("scraper: invalid base url %q: %w", sc.BaseURL, err)
	}
	transport, err := NewTransport(sc.Transport, &cfg.SDKConfig)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTransport(transport)
	if timeout := cfg.RequestTimeout(); timeout > 0 {
		client.SetTimeout(timeout)
	}

	c := &Client{
		http:      client,
		baseURL:   baseURL,
		userAgent: sc.UserAgent,
		confirm:   sc.ConfirmPath,
		extractor: Extractor{
			PreviewSelector:  sc.PreviewSelector,
			PreviewAttribute: sc.PreviewAttribute,
			DownloadSelector: sc.DownloadSelector,
		},
		nonce: UniformNonce(sc.NonceMin, sc.NonceMax),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve runs the full resolution for pageURL. Relative URLs are taken against scrape.base-url.
func (c *Client) Resolve(ctx context.Context, pageURL string) (*Target, error) {
	abs, err := c.absolute(pageURL)
	if err != nil {
		return nil, &ResolveError{Stage: StageStart, URL: pageURL, Err: err}
	}
	target := &Target{SourceURL: abs}
	logger := log.WithField("path", abs)

	html, err := c.FetchPage(ctx, abs)
	if err != nil {
		return nil, &ResolveError{Stage: StageStart, URL: abs, Err: err}
	}
	if target.Title, err = ExtractTitle(html); err != nil {
		return nil, &ResolveError{Stage: StagePageFetched, URL: abs, Err: err}
	}
	if target.Params, err = c.extractor.SessionParams(html); err != nil {
		return nil, &ResolveError{Stage: StagePageFetched, URL: abs, Err: err}
	}
	logger.WithField("title", target.Title).Debug("scraper: session parameters extracted")

	if target.DownloadURL, err = c.ResolveDownloadURL(ctx, target.Params, abs); err != nil {
		stage := StageConfirmFetched
		if _, isFetch := errors.AsType[*FetchError](err); isFetch {
			stage = StageParamsExtracted
		}
		return nil, &ResolveError{Stage: stage, URL: abs, Err: err}
	}
	logger.Debug("scraper: download link resolved")
	return target, nil
}

// ConfirmURL renders the confirmation page URL for params on the origin of referer.
func (c *Client) ConfirmURL(params SessionParams, referer string) string {
	// id, session, r in the order the site emits them
	query := "id=" + url.QueryEscape(params.ID) +
		"&session=" + url.QueryEscape(params.Session) +
		"&r=" + strconv.Itoa(c.nonce())
	return c.origin(referer).String() + "/" + strings.TrimPrefix(c.confirm, "/") + "?" + query
}

// ResolveDownloadURL fetches the confirmation page and returns the absolute download URL.
func (c *Client) ResolveDownloadURL(ctx context.Context, params SessionParams, referer string) (string, error) {
	html, err := c.fetch(ctx, c.ConfirmURL(params, referer), referer)
	if err != nil {
		return "", err
	}
	href, err := c.extractor.DownloadPath(html)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: invalid href %q", ErrDownloadLinkNotFound, href)
	}
	return c.origin(referer).ResolveReference(ref).String(), nil
}

// FetchPage downloads pageURL with browser headers and pageURL as referer.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	return c.fetch(ctx, pageURL, pageURL)
}

func (c *Client) fetch(ctx context.Context, target, referer string) (string, error) {
	resp, err := c.Open(ctx, target, referer, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: target, StatusCode: 0, Cause: err}
	}
	return string(data), nil
}

// Open issues a GET through the session and returns the decoded, still-open response. Values in
// header replace the browser defaults. Non-2xx responses are consumed and reported as *FetchError.
// Callers close the body.
func (c *Client) Open(ctx context.Context, target, referer string, header http.Header) (*http.Response, error) {
	req := c.http.R().SetContext(ctx).SetDoNotParseResponse(true)
	misc.EnsureHeaders(req.Header, header, map[string]string{
		"User-Agent":      c.userAgent,
		"Referer":         referer,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": acceptEncoding,
	})

	res, err := req.Get(target)
	if err != nil {
		return nil, &FetchError{URL: target, Cause: err}
	}
	raw := res.RawResponse
	body, err := decodeBody(raw.Body, raw.Header.Get("Content-Encoding"))
	if err != nil {
		_ = raw.Body.Close()
		return nil, &FetchError{URL: target, StatusCode: raw.StatusCode, Cause: err}
	}
	raw.Body = body
	raw.Header.Del("Content-Encoding")

	if raw.StatusCode < http.StatusOK || raw.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(raw.Body, maxErrorBody))
		_ = raw.Body.Close()
		return nil, &FetchError{URL: target, StatusCode: raw.StatusCode, Body: string(snippet)}
	}
	return raw, nil
}

func (c *Client) absolute(pageURL string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}
	if ref.String() == "" {
		return "", fmt.Errorf("page url is required")
	}
	abs := c.baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("unsupported page url %q", pageURL)
	}
	return abs.String(), nil
}

// origin returns scheme://host of referer, falling back to the configured base URL.
func (c *Client) origin(referer string) *url.URL {
	if u, err := url.Parse(referer); err == nil && u.Scheme != "" && u.Host != "" {
		return &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
	return &url.URL{Scheme: c.baseURL.Scheme, Host: c.baseURL.Host}
}
