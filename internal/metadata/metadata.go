// Package metadata looks up canonical book details on Open Library and turns them into listing copy.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ebooklister/ebooklister/internal/buildinfo"
	"github.com/ebooklister/ebooklister/internal/cache"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	// ErrBookNotFound means the search returned no documents.
	ErrBookNotFound = errors.New("no book found")
	// ErrLookupFailed wraps transport failures and non-2xx search responses.
	ErrLookupFailed = errors.New("metadata lookup failed")
)

// Book is the subset of an Open Library search document used for listings.
type Book struct {
	Title         string   `json:"title" form:"title"`
	Authors       []string `json:"authors" form:"authors"`
	PublishYear   int      `json:"publish_year,omitzero" form:"publish_year"`
	Publishers    []string `json:"publishers,omitempty" form:"publishers"`
	ISBN10        string   `json:"isbn_10,omitempty" form:"isbn_10"`
	ISBN13        string   `json:"isbn_13,omitempty" form:"isbn_13"`
	Languages     []string `json:"language,omitempty" form:"language"`
	NumberOfPages int      `json:"number_of_pages,omitzero" form:"number_of_pages"`
	Subjects      []string `json:"subjects,omitempty" form:"subjects"`
	CoverImage    string   `json:"cover_image,omitempty" form:"cover_image"`
}

// Client queries the search API. Successful searches are cached by query.
type Client struct {
	http      *resty.Client
	coversURL string
	cache     *cache.LookupCache[Book]
}

// NewClient builds a client for cfg.Metadata honoring the proxy and timeout settings.
func NewClient(cfg *config.Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.Metadata.BaseURL, "/"))
	client.SetHeader("User-Agent", buildinfo.UserAgent())
	client.SetHeader("Accept", "application/json")
	if timeout := cfg.RequestTimeout(); timeout > 0 {
		client.SetTimeout(timeout)
	}
	if transport := util.SetProxy(&cfg.SDKConfig, &http.Client{}).Transport; transport != nil {
		client.SetTransport(transport)
	}
	c := &Client{http: client, coversURL: strings.TrimRight(cfg.Metadata.CoversURL, "/")}
	if ttl := cfg.Metadata.CacheTTL(); ttl > 0 {
		c.cache = cache.NewLookupCache[Book](ttl)
	}
	return c
}

// StartCacheCleanup purges expired search results in the background until ctx ends.
func (c *Client) StartCacheCleanup(ctx context.Context) {
	if c.cache != nil {
		c.cache.StartCleanup(ctx, cache.CleanupInterval)
	}
}

// SearchTitle returns the part of title before the first colon, which is what gets searched.
func SearchTitle(title string) string {
	before, _, _ := strings.Cut(title, ":")
	return strings.TrimSpace(before)
}

// SearchByTitle returns the best match for title.
func (c *Client) SearchByTitle(ctx context.Context, title string) (*Book, error) {
	query := SearchTitle(title)
	if query == "" {
		return nil, fmt.Errorf("%w: empty title", ErrBookNotFound)
	}
	if c.cache != nil {
		if cached, ok := c.cache.Get(query); ok {
			log.WithField("title", query).Debug("metadata: cache hit")
			return &cached, nil
		}
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("title", query).
		SetQueryParam("limit", "1").
		Get("/search.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d: %s", ErrLookupFailed, res.StatusCode(), strings.TrimSpace(res.String()))
	}

	doc := gjson.GetBytes(res.Body(), "docs.0")
	if !doc.Exists() {
		log.WithField("title", query).Debug("metadata: search returned no documents")
		return nil, ErrBookNotFound
	}
	book := c.parseDoc(doc)
	if c.cache != nil {
		c.cache.Put(query, *book)
	}
	return book, nil
}

func (c *Client) parseDoc(doc gjson.Result) *Book {
	book := &Book{
		Title:         doc.Get("title").String(),
		Authors:       stringArray(doc.Get("author_name")),
		PublishYear:   int(doc.Get("first_publish_year").Int()),
		Publishers:    stringArray(doc.Get("publisher")),
		Languages:     stringArray(doc.Get("language")),
		NumberOfPages: int(doc.Get("number_of_pages_median").Int()),
		Subjects:      stringArray(doc.Get("subject")),
	}
	if len(book.Authors) == 0 {
		book.Authors = []string{"Unknown"}
	}
	for _, isbn := range stringArray(doc.Get("isbn")) {
		switch {
		case len(isbn) == 10 && book.ISBN10 == "":
			book.ISBN10 = isbn
		case len(isbn) == 13 && book.ISBN13 == "":
			book.ISBN13 = isbn
		}
	}
	if cover := doc.Get("cover_i"); cover.Exists() && cover.Int() > 0 {
		book.CoverImage = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coversURL, cover.Int())
	}
	return book
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	items := r.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
