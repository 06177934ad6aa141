// Package etsyapi is a thin client for the Etsy Open API v3 endpoints used by the listing flow.
// Calls are single-attempt; remote failures surface as *APIError carrying the status and body.
package etsyapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ebooklister/ebooklister/internal/buildinfo"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrAPI matches every *APIError.
var ErrAPI = errors.New("etsy api error")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := gjson.Get(e.Body, "error").String()
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	return fmt.Sprintf("etsy api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// Client talks to the application API with a bearer token and the app's x-api-key.
type Client struct {
	http     *resty.Client
	download *resty.Client
	listing  config.ListingConfig
	renew    func(context.Context) error
}

// NewClient builds a client. tokens supplies the bearer token for every request; ping works
// without one.
func NewClient(cfg *config.Config, tokens oauth2.TokenSource) *Client {
	base := util.SetProxy(&cfg.SDKConfig, &http.Client{}).Transport
	if base == nil {
		base = http.DefaultTransport
	}

	api := resty.New()
	api.SetBaseURL(strings.TrimRight(cfg.Etsy.APIBaseURL, "/"))
	api.SetHeader("x-api-key", cfg.Etsy.APIKey)
	api.SetHeader("User-Agent", buildinfo.UserAgent())
	api.SetHeader("Accept", "application/json")
	if tokens != nil {
		api.SetTransport(&oauth2.Transport{Source: tokens, Base: base})
	} else {
		api.SetTransport(base)
	}

	download := resty.New()
	download.SetHeader("User-Agent", buildinfo.UserAgent())
	download.SetTransport(base)

	if timeout := cfg.RequestTimeout(); timeout > 0 {
		api.SetTimeout(timeout)
		download.SetTimeout(timeout)
	}
	return &Client{http: api, download: download, listing: cfg.Listing}
}

// WithRenewal installs fn to obtain a new access token after a 401. The rejected request is
// then sent once more.
func (c *Client) WithRenewal(fn func(context.Context) error) *Client {
	c.renew = fn
	return c
}

// User is the authenticated account.
type User struct {
	UserID int64 `json:"user_id"`
	ShopID int64 `json:"shop_id,omitzero"`
}

// Shop is a seller's storefront.
type Shop struct {
	ShopID     int64  `json:"shop_id"`
	ShopName   string `json:"shop_name"`
	URL        string `json:"url,omitempty"`
	CreateDate int64  `json:"create_date,omitzero"`
}

// Ping checks the API key and returns the application id.
func (c *Client) Ping(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/openapi-ping")
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(body, "application_id").Int(), nil
}

// GetMe returns the user owning the access token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	body, err := c.get(ctx, "/users/me")
	if err != nil {
		return nil, err
	}
	return &User{
		UserID: gjson.GetBytes(body, "user_id").Int(),
		ShopID: gjson.GetBytes(body, "shop_id").Int(),
	}, nil
}

// GetShops returns the shops of userID. The endpoint answers with a single shop object or a
// paginated {count, results} envelope depending on the API revision; both are accepted.
func (c *Client) GetShops(ctx context.Context, userID int64) ([]Shop, error) {
	body, err := c.get(ctx, "/users/"+strconv.FormatInt(userID, 10)+"/shops")
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	var items []gjson.Result
	switch {
	case doc.Get("results").IsArray():
		items = doc.Get("results").Array()
	case doc.Get("shops").IsArray():
		items = doc.Get("shops").Array()
	case doc.Get("shop_id").Exists():
		items = []gjson.Result{doc}
	}
	shops := make([]Shop, 0, len(items))
	for _, item := range items {
		shops = append(shops, Shop{
			ShopID:     item.Get("shop_id").Int(),
			ShopName:   item.Get("shop_name").String(),
			URL:        item.Get("url").String(),
			CreateDate: item.Get("create_date").Int(),
		})
	}
	return shops, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// send executes the request prepared by build. build runs again for the retry after a renewal,
// so it must not consume one-shot readers.
func (c *Client) send(ctx context.Context, method, path string, build func(*resty.Request)) ([]byte, error) {
	body, err := c.attempt(ctx, method, path, build)
	if c.renew == nil || !isUnauthorized(err) {
		return body, err
	}
	log.Debugf("etsy api %s %s: access token rejected, renewing", method, path)
	if errRenew := c.renew(ctx); errRenew != nil {
		log.Warnf("etsy api %s %s: token renewal failed: %v", method, path, errRenew)
		return nil, err
	}
	return c.attempt(ctx, method, path, build)
}

func (c *Client) attempt(ctx context.Context, method, path string, build func(*resty.Request)) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if build != nil {
		build(req)
	}
	res, err := req.Execute(method, path)
	return checkResponse(method, path, res, err)
}

func isUnauthorized(err error) bool {
	apiErr, ok := errors.AsType[*APIError](err)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

func checkResponse(method, path string, res *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("etsy api %s %s: %w", method, path, err)
	}
	if !res.IsSuccess() {
		return nil, &APIError{Method: method, Path: path, StatusCode: res.StatusCode(), Body: res.String()}
	}
	return res.Body(), nil
}
