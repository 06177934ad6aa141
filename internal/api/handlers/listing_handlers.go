package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ebooklister/ebooklister/internal/etsyapi"
	"github.com/gin-gonic/gin"
)

// Ping checks the application key.
func (h *Handler) Ping(c *gin.Context) {
	id, err := h.Market.Ping(requestContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": id})
}

// GetUser returns the authenticated user, the shop used for listings and the user's shops.
func (h *Handler) GetUser(c *gin.Context) {
	ctx := requestContext(c)
	me, err := h.Market.GetMe(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	shops, err := h.Market.GetShops(ctx, me.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	shopID := h.defaultShopID()
	switch {
	case shopID != "":
	case me.ShopID != 0:
		shopID = strconv.FormatInt(me.ShopID, 10)
	case len(shops) > 0:
		shopID = strconv.FormatInt(shops[0].ShopID, 10)
	}
	c.JSON(http.StatusOK, gin.H{"user_id": me.UserID, "shop_id": shopID, "shops": shops})
}

// CreateListing creates a draft digital listing. price is optional.
func (h *Handler) CreateListing(c *gin.Context) {
	in := etsyapi.ListingInput{
		Title:       strings.TrimSpace(c.Query("title")),
		Description: c.Query("description"),
	}
	if in.Title == "" {
		badRequest(c, "title is required")
		return
	}
	if raw := c.Query("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "invalid price")
			return
		}
		in.Price = price
	}
	if tags := splitList(c.QueryArray("tags")); len(tags) > 0 {
		in.Tags = tags
	}
	listing, err := h.Market.CreateListing(requestContext(c), h.shopParam(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// UploadListingImage copies image_url onto the listing.
func (h *Handler) UploadListingImage(c *gin.Context) {
	listingID, imageURL := c.Query("listing_id"), strings.TrimSpace(c.Query("image_url"))
	if listingID == "" || imageURL == "" {
		badRequest(c, "listing_id and image_url are required")
		return
	}
	img, err := h.Market.UploadListingImageFromURL(requestContext(c), h.shopParam(c), listingID, imageURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

// UploadListingFile attaches a downloaded PDF to the listing.
func (h *Handler) UploadListingFile(c *gin.Context) {
	listingID := c.Query("listing_id")
	if listingID == "" {
		badRequest(c, "listing_id is required")
		return
	}
	path, err := h.Files.Path(c.Query("file_name"))
	if err != nil {
		writeError(c, err)
		return
	}
	file, err := h.Market.UploadListingFile(requestContext(c), h.shopParam(c), listingID, path)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

type publishRequest struct {
	BookURL string `json:"book_url" binding:"required"`
}

// Publish runs the full pipeline for one book.
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "book_url is required")
		return
	}
	res, err := h.Publisher.Run(requestContext(c), strings.TrimSpace(req.BookURL))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) shopParam(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("shop_id")); id != "" {
		return id
	}
	return h.defaultShopID()
}
