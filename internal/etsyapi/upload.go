package etsyapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ListingImage is an uploaded listing image.
type ListingImage struct {
	ListingImageID int64  `json:"listing_image_id"`
	URL            string `json:"url_fullxfull,omitempty"`
}

// ListingFile is an uploaded digital file.
type ListingFile struct {
	ListingFileID int64  `json:"listing_file_id"`
	Filename      string `json:"filename"`
	Filesize      string `json:"filesize,omitempty"`
}

// UploadListingImage uploads image data as the listing's next image.
func (c *Client) UploadListingImage(ctx context.Context, shopID, listingID, fileName string, image io.Reader) (*ListingImage, error) {
	if shopID == "" {
		return nil, ErrMissingShopID
	}
	data, err := io.ReadAll(image)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", fileName, err)
	}
	p := "/shops/" + shopID + "/listings/" + listingID + "/images"
	body, err := c.send(ctx, http.MethodPost, p, func(r *resty.Request) {
		r.SetFileReader("image", fileName, bytes.NewReader(data))
	})
	if err != nil {
		return nil, err
	}
	return &ListingImage{
		ListingImageID: gjson.GetBytes(body, "listing_image_id").Int(),
		URL:            gjson.GetBytes(body, "url_fullxfull").String(),
	}, nil
}

// UploadListingImageFromURL downloads imageURL without credentials and uploads it.
func (c *Client) UploadListingImageFromURL(ctx context.Context, shopID, listingID, imageURL string) (*ListingImage, error) {
	res, err := c.download.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("download image %s: %w", imageURL, err)
	}
	if !res.IsSuccess() {
		return nil, &APIError{Method: http.MethodGet, Path: imageURL, StatusCode: res.StatusCode(), Body: res.String()}
	}
	return c.UploadListingImage(ctx, shopID, listingID, imageName(imageURL), bytes.NewReader(res.Body()))
}

// UploadListingFile uploads the file at localPath as a digital download of the listing.
func (c *Client) UploadListingFile(ctx context.Context, shopID, listingID, localPath string) (*ListingFile, error) {
	if shopID == "" {
		return nil, ErrMissingShopID
	}
	name := filepath.Base(localPath)
	p := "/shops/" + shopID + "/listings/" + listingID + "/files"
	body, err := c.send(ctx, http.MethodPost, p, func(r *resty.Request) {
		r.SetFile("file", localPath).SetMultipartFormData(map[string]string{"name": name})
	})
	if err != nil {
		return nil, err
	}
	return &ListingFile{
		ListingFileID: gjson.GetBytes(body, "listing_file_id").Int(),
		Filename:      gjson.GetBytes(body, "filename").String(),
		Filesize:      gjson.GetBytes(body, "filesize").String(),
	}, nil
}

func imageName(imageURL string) string {
	if u, err := url.Parse(imageURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "cover.jpg"
}
