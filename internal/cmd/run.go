package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/ebooklister/ebooklister/internal/api"
	"github.com/ebooklister/ebooklister/internal/api/handlers"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/ebooklister/ebooklister/internal/util"
	"github.com/ebooklister/ebooklister/internal/watcher"
	"github.com/ebooklister/ebooklister/internal/wsrelay"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// NewAPIServer builds the HTTP server over svc.
func NewAPIServer(svc *Services) *api.Server {
	h := handlers.NewHandler(handlers.Deps{
		Auth:      svc.Auth,
		Tokens:    svc.Tokens,
		Resolver:  svc.Scraper,
		Files:     svc.Files,
		Books:     svc.Books,
		Market:    svc.Market,
		Publisher: svc.Pipeline,
	}, svc.Config.Etsy.ShopID)
	return api.NewServer(svc.Config, h)
}

// StartService serves the API until ctx is cancelled, hot-reloading configPath and the
// credentials file while running.
func StartService(ctx context.Context, svc *Services, configPath string) error {
	server := NewAPIServer(svc)
	progress := wsrelay.NewManager(wsrelay.Options{CheckOrigin: server.CheckOrigin})
	server.Mount(progress.Path(), progress.Handler())
	svc.Pipeline.Events = progress

	credentialsPath := ""
	if svc.Store.Location() == svc.Config.CredentialsFile {
		credentialsPath = svc.Config.CredentialsFile
	}
	current := svc.Config
	w, err := watcher.NewWatcher(configPath, credentialsPath, func(cfg *config.Config) {
		applyReload(server, svc, current, cfg)
		current = cfg
	}, svc.Tokens.Reset)
	if err != nil {
		log.Warnf("config hot reload disabled: %v", err)
	} else {
		w.SetConfig(svc.Config)
		if errStart := w.Start(ctx); errStart != nil {
			log.Warnf("config hot reload disabled: %v", errStart)
		}
		defer func() {
			if errStop := w.Stop(); errStop != nil {
				log.Debugf("watcher stop: %v", errStop)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down API server")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = progress.Stop(stopCtx)
	if err = server.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}

func applyReload(server *api.Server, svc *Services, old, cfg *config.Config) {
	server.UpdateConfig(cfg)
	if old.LoggingToFile != cfg.LoggingToFile || old.LogsMaxTotalSizeMB != cfg.LogsMaxTotalSizeMB {
		if err := logging.ConfigureLogOutput(cfg); err != nil {
			log.Errorf("failed to reconfigure log output: %v", err)
		}
	}
	if dir, err := util.ResolvePath(cfg.DownloadDir); err == nil && dir != svc.Files.Dir() {
		svc.Files.SetDir(dir)
		log.Infof("download directory changed to %s", dir)
	}
}
