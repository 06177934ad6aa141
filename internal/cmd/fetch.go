package cmd

import (
	"context"
	"fmt"

	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/ebooklister/ebooklister/internal/publish"
	log "github.com/sirupsen/logrus"
)

// DoFetch resolves bookURL and downloads its PDF, returning the local path.
func DoFetch(ctx context.Context, svc *Services, bookURL string) (string, error) {
	target, err := svc.Scraper.Resolve(ctx, bookURL)
	if err != nil {
		return "", err
	}
	path, err := svc.Files.Fetch(ctx, target.DownloadURL, target.Title)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).WithFields(log.Fields{"title": target.Title, "path": path}).Info("pdf downloaded")
	fmt.Printf("Downloaded %q to %s\n", target.Title, path)
	return path, nil
}

// DoPublish runs the full listing pipeline for bookURL.
func DoPublish(ctx context.Context, svc *Services, bookURL string) (*publish.Result, error) {
	res, err := svc.Pipeline.Run(ctx, bookURL)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Created draft listing %d in shop %s for %q\n", res.ListingID, res.ShopID, res.Title)
	return res, nil
}
