package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/etsyapi"
	"github.com/ebooklister/ebooklister/internal/fetcher"
	"github.com/ebooklister/ebooklister/internal/metadata"
	"github.com/ebooklister/ebooklister/internal/publish"
	"github.com/ebooklister/ebooklister/internal/scraper"
	"github.com/ebooklister/ebooklister/internal/store"
	"github.com/ebooklister/ebooklister/internal/util"
	log "github.com/sirupsen/logrus"
)

// Services holds the collaborators shared by the API server and the one-shot commands.
type Services struct {
	Config   *config.Config
	Store    store.CredentialStore
	Auth     *etsy.EtsyAuth
	Tokens   *etsy.TokenSource
	Scraper  *scraper.Client
	Files    *fetcher.Fetcher
	Books    *metadata.Client
	Market   *etsyapi.Client
	Pipeline *publish.Pipeline
}

// NewServices opens the credential store and builds every client from cfg. ctx bounds the
// store setup and is used for token refreshes made by the marketplace client.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	credentials, err := store.OpenCredentialStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	svc := &Services{Config: cfg, Store: credentials}
	svc.Auth = etsy.NewEtsyAuth(cfg, nil)
	svc.Tokens = etsy.NewTokenSource(svc.Auth, credentials)

	svc.Scraper, err = scraper.NewClient(cfg)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("create scraper: %w", err)
	}

	dir, err := util.ResolvePath(cfg.DownloadDir)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Files = fetcher.New(svc.Scraper, dir)
	if cfg.Archive.Enabled() {
		archive, errArchive := store.NewObjectArchive(cfg.Archive)
		if errArchive != nil {
			svc.Close()
			return nil, errArchive
		}
		svc.Files.WithArchiver(archive)
		log.Infof("archiving fetched PDFs to bucket %s", cfg.Archive.Bucket)
	}

	svc.Books = metadata.NewClient(cfg)
	svc.Books.StartCacheCleanup(ctx)
	svc.Market = etsyapi.NewClient(cfg, svc.Tokens.OAuth2(ctx)).WithRenewal(svc.Tokens.Renew)
	svc.Pipeline = &publish.Pipeline{
		Resolver:    svc.Scraper,
		Downloader:  svc.Files,
		Books:       svc.Books,
		Marketplace: svc.Market,
		ShopID:      cfg.Etsy.ShopID,
	}
	return svc, nil
}

// Close releases the credential store connection, if it holds one.
func (s *Services) Close() {
	if closer, ok := s.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warnf("failed to close credential store: %v", err)
		}
	}
}
