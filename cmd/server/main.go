// Package main provides the entry point for the ebook lister. By default it serves the HTTP
// API used by the browser client; flags run the login, refresh, fetch and publish steps once
// from the terminal instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/ebooklister/ebooklister/internal/buildinfo"
	"github.com/ebooklister/ebooklister/internal/cmd"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/ebooklister/ebooklister/internal/misc"
	"github.com/ebooklister/ebooklister/internal/util"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	fmt.Printf("ebooklister %s\n", buildinfo.Summary())

	var login bool
	var refresh bool
	var noBrowser bool
	var oauthCallbackPort int
	var fetchURL string
	var publishURL string
	var configPath string

	flag.BoolVar(&login, "login", false, "Authorize the Etsy shop using OAuth")
	flag.BoolVar(&refresh, "refresh", false, "Refresh the stored Etsy access token")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&oauthCallbackPort, "oauth-callback-port", 0, "Override OAuth callback port (defaults to etsy.callback-port)")
	flag.StringVar(&fetchURL, "fetch", "", "Download the PDF of the book at this page URL")
	flag.StringVar(&publishURL, "publish", "", "Download the book at this page URL and list it as a draft")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
		copied, errCopy := misc.CopyConfigTemplate(filepath.Join(wd, "config.example.yaml"), configPath)
		if errCopy != nil {
			log.Warnf("failed to create config from template: %v", errCopy)
		} else if copied {
			log.Infof("config initialized from template: %s", configPath)
		}
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	log.Infof("ebooklister %s", buildinfo.Summary())
	util.SetLogLevel(cfg)

	if cfg.Etsy.ClientID == "" {
		log.Warn("ETSY_API_KEY is not set; authorization and listing calls will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := cmd.NewServices(ctx, cfg)
	if err != nil {
		log.Errorf("failed to initialize services: %v", err)
		return
	}
	defer svc.Close()

	switch {
	case login:
		cmd.DoLogin(ctx, svc, &cmd.LoginOptions{
			NoBrowser:    noBrowser,
			CallbackPort: oauthCallbackPort,
		})
	case refresh:
		if err = cmd.DoRefresh(ctx, svc); err != nil {
			log.Errorf("token refresh failed: %v", err)
			fmt.Println(etsy.GetUserFriendlyMessage(err))
		}
	case fetchURL != "":
		if _, err = cmd.DoFetch(ctx, svc, fetchURL); err != nil {
			log.Errorf("fetch failed: %v", err)
		}
	case publishURL != "":
		if _, err = cmd.DoPublish(ctx, svc, publishURL); err != nil {
			log.Errorf("publish failed: %v", err)
		}
	default:
		if err = cmd.StartService(ctx, svc, configPath); err != nil {
			log.Errorf("server stopped: %v", err)
		}
	}
}
