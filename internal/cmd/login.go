package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/ebooklister/ebooklister/internal/browser"
	"github.com/ebooklister/ebooklister/internal/misc"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login process.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int

	// Prompt allows the caller to provide interactive input when needed.
	Prompt func(prompt string) (string, error)

	// OpenURL replaces the system browser launcher.
	OpenURL func(url string) error
}

var (
	callbackTimeout   = 5 * time.Minute
	manualPromptDelay = 15 * time.Second
)

// DoLogin runs the interactive authorization and exits with the port-in-use code when the
// callback port is taken.
func DoLogin(ctx context.Context, svc *Services, options *LoginOptions) {
	if err := Login(ctx, svc, options); err != nil {
		if authErr, ok := errors.AsType[*etsy.AuthenticationError](err); ok {
			log.Error(etsy.GetUserFriendlyMessage(authErr))
			if authErr.Type == etsy.ErrPortInUse.Type {
				os.Exit(etsy.ErrPortInUse.Code)
			}
			return
		}
		log.Errorf("authentication failed: %v", err)
		fmt.Println(etsy.GetUserFriendlyMessage(err))
		return
	}
	fmt.Println("Etsy authentication successful!")
}

// Login starts a local callback server, sends the user to the consent page and stores the
// resulting tokens. After a short wait the user may paste the callback URL instead.
func Login(ctx context.Context, svc *Services, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	promptFn := options.Prompt
	if promptFn == nil {
		promptFn = stdinPrompt()
	}

	cfg := svc.Config
	port := cfg.Etsy.CallbackPort
	if options.CallbackPort > 0 {
		port = options.CallbackPort
	}

	oauthServer := etsy.NewOAuthServer(port, cfg.Etsy.RedirectURI)
	if err := oauthServer.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if errStop := oauthServer.Stop(stopCtx); errStop != nil {
			log.Warnf("oauth server stop error: %v", errStop)
		}
	}()

	authURL, _, err := svc.Auth.Begin()
	if err != nil {
		return fmt.Errorf("authorization url generation failed: %w", err)
	}
	showAuthURL(authURL, options)
	fmt.Println("Waiting for Etsy authentication callback...")

	result, err := waitForCallback(ctx, oauthServer, promptFn)
	if err != nil {
		return err
	}
	log.Debug("authorization code received; exchanging for tokens")
	pair, err := svc.Auth.CompleteCallback(ctx, result.Code, result.State, result.Error, result.ErrorDescription)
	if err != nil {
		return err
	}

	misc.LogSavingCredentials(svc.Store.Location())
	return svc.Tokens.Store(ctx, *pair)
}

func showAuthURL(authURL string, options *LoginOptions) {
	open := options.OpenURL
	if open == nil && !options.NoBrowser && browser.IsAvailable() {
		open = browser.OpenURL
	}
	if open != nil && !options.NoBrowser {
		fmt.Println("Opening browser for Etsy authentication")
		errOpen := open(authURL)
		if errOpen == nil {
			return
		}
		log.Warnf("Failed to open browser automatically: %v", errOpen)
	}
	fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	if misc.CopyToClipboard(authURL) {
		fmt.Println("(the URL was copied to your clipboard)")
	}
}

func waitForCallback(ctx context.Context, oauthServer *etsy.OAuthServer, promptFn func(string) (string, error)) (*etsy.OAuthResult, error) {
	callbackCh := make(chan *etsy.OAuthResult, 1)
	callbackErrCh := make(chan error, 1)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		result, errWait := oauthServer.WaitForCallback(waitCtx, callbackTimeout)
		if errWait != nil {
			callbackErrCh <- errWait
			return
		}
		callbackCh <- result
	}()

	type promptResult struct {
		input string
		err   error
	}
	promptCh := make(chan promptResult, 1)

	manualPromptTimer := time.NewTimer(manualPromptDelay)
	defer manualPromptTimer.Stop()
	manualPromptC := manualPromptTimer.C

	for {
		select {
		case result := <-callbackCh:
			return result, nil
		case err := <-callbackErrCh:
			return nil, err
		case <-manualPromptC:
			manualPromptC = nil
			go func() {
				input, errPrompt := promptFn("Paste the callback URL (or press Enter to keep waiting): ")
				promptCh <- promptResult{input: input, err: errPrompt}
			}()
		case answer := <-promptCh:
			if answer.err != nil {
				return nil, answer.err
			}
			parsed, errParse := misc.ParseOAuthCallback(answer.input)
			if errParse != nil {
				return nil, errParse
			}
			if parsed == nil {
				continue
			}
			return &etsy.OAuthResult{
				Code:             parsed.Code,
				State:            parsed.State,
				Error:            parsed.Error,
				ErrorDescription: parsed.ErrorDescription,
			}, nil
		}
	}
}

func stdinPrompt() func(string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		fmt.Print(prompt)
		value, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}
