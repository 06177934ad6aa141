// Package publish runs the end-to-end flow from a book page URL to a draft marketplace listing.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ebooklister/ebooklister/internal/etsyapi"
	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/ebooklister/ebooklister/internal/metadata"
	"github.com/ebooklister/ebooklister/internal/scraper"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Step names, in execution order.
const (
	StepResolve     = "resolve"
	StepFetch       = "fetch"
	StepMetadata    = "metadata"
	StepShop        = "shop"
	StepListing     = "listing"
	StepImage       = "image"
	StepFile        = "file"
	StepCleanup     = "cleanup"
	defaultPaceTime = time.Second
)

// Downloader stores a resolved PDF locally. *fetcher.Fetcher satisfies it.
type Downloader interface {
	Fetch(ctx context.Context, pdfURL, title string) (string, error)
	Remove(name string) error
}

// BookFinder looks up book metadata. *metadata.Client satisfies it.
type BookFinder interface {
	SearchByTitle(ctx context.Context, title string) (*metadata.Book, error)
}

// Marketplace is the subset of *etsyapi.Client the pipeline drives.
type Marketplace interface {
	GetMe(ctx context.Context) (*etsyapi.User, error)
	CreateListing(ctx context.Context, shopID string, in etsyapi.ListingInput) (*etsyapi.Listing, error)
	UploadListingImageFromURL(ctx context.Context, shopID, listingID, imageURL string) (*etsyapi.ListingImage, error)
	UploadListingFile(ctx context.Context, shopID, listingID, localPath string) (*etsyapi.ListingFile, error)
}

// Event statuses.
const (
	StatusStarted  = "started"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusFinished = "finished"
)

// Event reports the progress of one run.
type Event struct {
	JobID  string  `json:"job_id"`
	Step   string  `json:"step,omitempty"`
	Status string  `json:"status"`
	Title  string  `json:"title,omitempty"`
	Error  string  `json:"error,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// EventSink receives progress events. Emit must not block.
type EventSink interface {
	Emit(Event)
}

// StepError is the first failure of a run.
type StepError struct {
	JobID string
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("publish job %s failed at %s: %v", e.JobID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result summarizes a successful run.
type Result struct {
	JobID       string `json:"job_id"`
	Title       string `json:"title"`
	PDF         string `json:"pdf"`
	ShopID      string `json:"shop_id"`
	ListingID   int64  `json:"listing_id"`
	ImageID     int64  `json:"listing_image_id,omitzero"`
	FileID      int64  `json:"listing_file_id"`
	Description string `json:"description"`
}

// Pipeline wires the collaborators of one run. ShopID, when set, skips the user lookup.
type Pipeline struct {
	Resolver    scraper.Resolver
	Downloader  Downloader
	Books       BookFinder
	Marketplace Marketplace
	ShopID      string
	// Pace is the pause before each upload. Zero means one second, negative disables it.
	Pace time.Duration
	// KeepPDF leaves the local file in place after upload.
	KeepPDF bool
	// Events, when set, receives a started event, one event per finished step and a
	// final finished or failed event.
	Events EventSink
}

// Run publishes the book at bookURL. The local PDF is removed only after a successful upload.
func (p *Pipeline) Run(ctx context.Context, bookURL string) (*Result, error) {
	res := &Result{JobID: uuid.NewString()}
	logger := logging.FromContext(ctx).WithField("job", res.JobID)
	fail := func(step string, err error) (*Result, error) {
		logger.WithFields(log.Fields{"step": step, "error": err}).Error("publish step failed")
		p.emit(Event{JobID: res.JobID, Step: step, Status: StatusFailed, Title: res.Title, Error: err.Error()})
		return nil, &StepError{JobID: res.JobID, Step: step, Err: err}
	}
	done := func(step string) {
		p.emit(Event{JobID: res.JobID, Step: step, Status: StatusDone, Title: res.Title})
	}
	p.emit(Event{JobID: res.JobID, Status: StatusStarted})

	target, err := p.Resolver.Resolve(ctx, bookURL)
	if err != nil {
		return fail(StepResolve, err)
	}
	res.Title = target.Title
	logger.WithFields(log.Fields{"step": StepResolve, "title": target.Title}).Info("download link resolved")
	done(StepResolve)

	pdfPath, err := p.Downloader.Fetch(ctx, target.DownloadURL, target.Title)
	if err != nil {
		return fail(StepFetch, err)
	}
	res.PDF = filepath.Base(pdfPath)
	logger.WithFields(log.Fields{"step": StepFetch, "path": pdfPath}).Info("pdf stored")
	done(StepFetch)

	book, err := p.Books.SearchByTitle(ctx, target.Title)
	switch {
	case errors.Is(err, metadata.ErrBookNotFound):
		logger.WithField("step", StepMetadata).Warn("no metadata found, listing with title only")
		book = &metadata.Book{Title: target.Title}
	case err != nil:
		return fail(StepMetadata, err)
	}
	res.Description = metadata.GenerateDescription(*book)
	done(StepMetadata)

	res.ShopID = p.ShopID
	if res.ShopID == "" {
		me, errMe := p.Marketplace.GetMe(ctx)
		if errMe != nil {
			return fail(StepShop, errMe)
		}
		if me.ShopID == 0 {
			return fail(StepShop, etsyapi.ErrMissingShopID)
		}
		res.ShopID = strconv.FormatInt(me.ShopID, 10)
	}
	done(StepShop)

	input := etsyapi.ListingInput{Title: target.Title, Description: res.Description}
	if tags := metadata.Tags(*book, etsyapi.MaxTags); len(tags) > 0 {
		input.Tags = tags
	}
	listing, err := p.Marketplace.CreateListing(ctx, res.ShopID, input)
	if err != nil {
		return fail(StepListing, err)
	}
	res.ListingID = listing.ListingID
	listingID := strconv.FormatInt(listing.ListingID, 10)
	logger.WithFields(log.Fields{"step": StepListing, "shop_id": res.ShopID, "listing_id": listingID}).Info("draft listing created")
	done(StepListing)

	if book.CoverImage != "" {
		if err = p.pause(ctx); err != nil {
			return fail(StepImage, err)
		}
		img, errImg := p.Marketplace.UploadListingImageFromURL(ctx, res.ShopID, listingID, book.CoverImage)
		if errImg != nil {
			return fail(StepImage, errImg)
		}
		res.ImageID = img.ListingImageID
		done(StepImage)
	}

	if err = p.pause(ctx); err != nil {
		return fail(StepFile, err)
	}
	file, err := p.Marketplace.UploadListingFile(ctx, res.ShopID, listingID, pdfPath)
	if err != nil {
		return fail(StepFile, err)
	}
	res.FileID = file.ListingFileID
	done(StepFile)

	if !p.KeepPDF {
		if err = p.Downloader.Remove(res.PDF); err != nil {
			return fail(StepCleanup, err)
		}
	}
	logger.WithFields(log.Fields{"step": StepCleanup, "listing_id": listingID}).Info("publish finished")
	p.emit(Event{JobID: res.JobID, Step: StepCleanup, Status: StatusFinished, Title: res.Title, Result: res})
	return res, nil
}

func (p *Pipeline) emit(ev Event) {
	if p.Events != nil {
		p.Events.Emit(ev)
	}
}

func (p *Pipeline) pause(ctx context.Context) error {
	d := p.Pace
	if d < 0 {
		return nil
	}
	if d == 0 {
		d = defaultPaceTime
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
