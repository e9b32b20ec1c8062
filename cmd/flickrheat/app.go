package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/auth"
	"flickrheat/pkg/config"
	"flickrheat/pkg/flickr"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/oauth1"
	"flickrheat/pkg/ui"
)

// app bundles the collaborators most commands need
type app struct {
	cfg     *config.Config
	client  *flickr.Client
	oauth   *oauth1.Client
	service *activity.Service
	log     logger.Logger
}

// newApp loads configuration from all sources, initializes logging and
// wires the REST client and activity service.
func newApp(flags map[string]interface{}) (*app, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("flickrheat starting")

	client, oc, err := flickr.NewClientFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}

	mode, err := activity.ParseMode(cfg.Activity.Mode, activity.ModeUpload)
	if err != nil {
		return nil, err
	}
	svc := activity.NewService(client, activity.Options{
		PerPage:         cfg.Activity.PerPage,
		MaxPages:        cfg.Activity.MaxPages,
		DefaultMode:     mode,
		DefaultLeveling: cfg.Activity.Leveling,
		Logger:          log,
	})

	return &app{cfg: cfg, client: client, oauth: oc, service: svc, log: log}, nil
}

// mustApp is newApp for commands that cannot continue without it
func mustApp(flags map[string]interface{}) *app {
	a, err := newApp(flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	return a
}

// token returns the access token of the --account, or of the default
// stored account. No stored account means anonymous calls.
func (a *app) token() (*oauth1.AccessToken, error) {
	manager, err := auth.NewManager()
	if err != nil {
		return nil, err
	}

	if accountName != "" {
		account, err := manager.Retrieve(accountName)
		if err != nil {
			return nil, err
		}
		return a.checkAccount(account)
	}

	account, err := manager.RetrieveDefault()
	if errors.Is(err, auth.ErrCredentialsNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.checkAccount(account)
}

func (a *app) checkAccount(account *auth.Account) (*oauth1.AccessToken, error) {
	if !a.client.CanSign() {
		a.log.WarnWithFields("Stored account ignored: consumer credentials are not configured", map[string]interface{}{
			"account": account.Name,
		})
		return nil, nil
	}
	if account.ConsumerKey != "" && account.ConsumerKey != a.cfg.Flickr.ConsumerKey {
		a.log.WarnWithFields("Stored account was authorized for a different consumer key", map[string]interface{}{
			"account": account.Name,
		})
	}
	a.log.DebugWithFields("Signing requests", map[string]interface{}{
		"account":  account.Name,
		"username": account.Username,
	})
	return account.AccessToken(), nil
}

// mustToken is token for commands that print and exit on failure
func (a *app) mustToken() *oauth1.AccessToken {
	tok, err := a.token()
	if err != nil {
		ui.PrintError("Failed to load stored credentials", err.Error())
		os.Exit(1)
	}
	return tok
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
