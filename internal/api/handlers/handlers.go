// Package handlers implements the HTTP endpoints of the listing service: the OAuth entry
// points, book download and lookup, and the marketplace listing calls.
package handlers

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"sync"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/ebooklister/ebooklister/internal/etsyapi"
	"github.com/ebooklister/ebooklister/internal/fetcher"
	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/ebooklister/ebooklister/internal/metadata"
	"github.com/ebooklister/ebooklister/internal/publish"
	"github.com/ebooklister/ebooklister/internal/scraper"
	"github.com/ebooklister/ebooklister/internal/store"
	"github.com/gin-gonic/gin"
)

// Files is the local PDF storage. *fetcher.Fetcher satisfies it.
type Files interface {
	Fetch(ctx context.Context, pdfURL, title string) (string, error)
	Remove(name string) error
	Path(name string) (string, error)
}

// Marketplace is the subset of *etsyapi.Client served over HTTP.
type Marketplace interface {
	publish.Marketplace
	Ping(ctx context.Context) (int64, error)
	GetShops(ctx context.Context, userID int64) ([]etsyapi.Shop, error)
}

// Publisher runs the whole listing flow. *publish.Pipeline satisfies it.
type Publisher interface {
	Run(ctx context.Context, bookURL string) (*publish.Result, error)
}

// Deps are the collaborators behind the endpoints.
type Deps struct {
	Auth      *etsy.EtsyAuth
	Tokens    *etsy.TokenSource
	Resolver  scraper.Resolver
	Files     Files
	Books     publish.BookFinder
	Market    Marketplace
	Publisher Publisher
}

// Handler serves the API routes.
type Handler struct {
	Deps

	mu     sync.RWMutex
	shopID string
}

// NewHandler returns a handler; shopID is the configured default shop, may be empty.
func NewHandler(deps Deps, shopID string) *Handler {
	return &Handler{Deps: deps, shopID: shopID}
}

// SetShopID replaces the default shop after a config reload.
func (h *Handler) SetShopID(shopID string) {
	h.mu.Lock()
	h.shopID = shopID
	h.mu.Unlock()
}

func (h *Handler) defaultShopID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shopID
}

// Register attaches every route to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/", h.StartAuth)
	r.GET("/auth", h.StartAuth)
	r.GET("/callback", h.Callback)
	r.GET("/refresh", h.Refresh)

	r.GET("/get-book-pdf", h.GetBookPDF)
	r.GET("/search-book", h.SearchBook)
	r.GET("/generate-description", h.GenerateDescription)
	r.GET("/delete-pdf", h.DeletePDF)

	r.GET("/ping", h.Ping)
	r.GET("/get-user", h.GetUser)
	r.GET("/create-listing", h.CreateListing)
	r.GET("/upload-listing-image", h.UploadListingImage)
	r.GET("/upload-listing-file", h.UploadListingFile)

	r.POST("/publish", h.Publish)
}

// requestContext carries the request id into downstream logging.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if id := logging.GetGinRequestID(c); id != "" && logging.GetRequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, id)
	}
	return ctx
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// writeError maps err to a status code and an {error, details} body. Remote bodies are passed
// through verbatim in details.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	status := http.StatusInternalServerError

	if tokenErr, ok := errors.AsType[*etsy.TokenError](err); ok {
		status = http.StatusBadGateway
		if tokenErr.Body != "" {
			body["details"] = tokenErr.Body
		}
	}
	if apiErr, ok := errors.AsType[*etsyapi.APIError](err); ok {
		status = apiErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		body["details"] = apiErr.Body
	}
	if fetchErr, ok := errors.AsType[*scraper.FetchError](err); ok {
		status = http.StatusBadGateway
		if fetchErr.StatusCode != 0 {
			body["upstream_status"] = fetchErr.StatusCode
			body["details"] = fetchErr.Body
		}
	}
	if stepErr, ok := errors.AsType[*publish.StepError](err); ok {
		body["step"] = stepErr.Step
		body["job_id"] = stepErr.JobID
	}

	switch {
	case errors.Is(err, etsy.ErrProviderError),
		errors.Is(err, etsy.ErrMissingCode),
		errors.Is(err, etsy.ErrStateMismatch),
		errors.Is(err, fetcher.ErrInvalidFileName),
		errors.Is(err, etsyapi.ErrTitleTooLong),
		errors.Is(err, etsyapi.ErrTooManyTags),
		errors.Is(err, etsyapi.ErrInvalidPrice),
		errors.Is(err, etsyapi.ErrMissingShopID):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNoCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, scraper.ErrTitleNotFound),
		errors.Is(err, scraper.ErrNoPreviewAvailable),
		errors.Is(err, scraper.ErrDownloadLinkNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, fetcher.ErrUnexpectedContentType):
		status = http.StatusBadGateway
	case errors.Is(err, metadata.ErrBookNotFound), errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, body)
}
