package etsyapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Marketplace limits enforced before a listing is sent.
const (
	MaxTitleLength = 140
	MaxTags        = 13
	MaxMaterials   = 13
	PriceDivisor   = 100
)

var (
	ErrTitleTooLong  = errors.New("title must be 140 characters or less")
	ErrTooManyTags   = errors.New("maximum 13 tags allowed")
	ErrInvalidPrice  = errors.New("price must be positive")
	ErrMissingShopID = errors.New("shop id is required")
)

// ListingInput describes a draft digital listing. Zero values fall back to the configured
// listing defaults.
type ListingInput struct {
	Title       string
	Description string
	Price       float64
	Quantity    int
	Tags        []string
	Materials   []string
}

// Listing is the created listing as returned by the API.
type Listing struct {
	ListingID int64  `json:"listing_id"`
	Title     string `json:"title"`
	State     string `json:"state"`
	URL       string `json:"url,omitempty"`
}

// PriceCents converts a decimal price into the integer amount sent with PriceDivisor.
func PriceCents(price float64) int64 {
	return int64(math.Round(price * PriceDivisor))
}

// BuildListingPayload applies defaults and limits and renders the JSON request body.
// Materials beyond MaxMaterials are dropped; too many tags or a long title are errors.
func (c *Client) BuildListingPayload(in ListingInput) ([]byte, error) {
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return nil, ErrTitleTooLong
	}
	if in.Price == 0 {
		in.Price = c.listing.Price
	}
	if in.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if in.Quantity <= 0 {
		in.Quantity = c.listing.Quantity
	}
	if in.Tags == nil {
		in.Tags = c.listing.Tags
	}
	if len(in.Tags) > MaxTags {
		return nil, ErrTooManyTags
	}
	if in.Materials == nil {
		in.Materials = c.listing.Materials
	}
	if len(in.Materials) > MaxMaterials {
		in.Materials = in.Materials[:MaxMaterials]
	}

	fields := []struct {
		path  string
		value any
	}{
		{"title", in.Title},
		{"description", in.Description},
		{"price.amount", PriceCents(in.Price)},
		{"price.divisor", PriceDivisor},
		{"price.currency_code", c.listing.Currency},
		{"quantity", in.Quantity},
		{"who_made", c.listing.WhoMade},
		{"when_made", c.listing.WhenMade},
		{"is_supply", false},
		{"taxonomy_id", c.listing.TaxonomyID},
		{"type", "download"},
		{"state", c.listing.State},
		{"materials", nonNil(in.Materials)},
		{"tags", nonNil(in.Tags)},
		{"should_auto_renew", false},
	}
	payload := []byte(`{}`)
	var err error
	for _, f := range fields {
		if payload, err = sjson.SetBytes(payload, f.path, f.value); err != nil {
			return nil, fmt.Errorf("build listing payload: %s: %w", f.path, err)
		}
	}
	return payload, nil
}

// CreateListing creates a draft listing in shopID.
func (c *Client) CreateListing(ctx context.Context, shopID string, in ListingInput) (*Listing, error) {
	if shopID == "" {
		return nil, ErrMissingShopID
	}
	payload, err := c.BuildListingPayload(in)
	if err != nil {
		return nil, err
	}
	path := "/shops/" + shopID + "/listings"
	body, err := c.send(ctx, http.MethodPost, path, func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(payload)
	})
	if err != nil {
		return nil, err
	}
	return &Listing{
		ListingID: gjson.GetBytes(body, "listing_id").Int(),
		Title:     gjson.GetBytes(body, "title").String(),
		State:     gjson.GetBytes(body, "state").String(),
		URL:       gjson.GetBytes(body, "url").String(),
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
