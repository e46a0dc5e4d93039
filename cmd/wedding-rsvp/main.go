package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/logging"
	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "wedding-rsvp",
		Short:         "💍 Wedding RSVP backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		importCmd(),
		exportCmd(),
		statsCmd(),
		backupCmd(),
		whatsappLoginCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("❌ %v", err))
		os.Exit(1)
	}
}

// app is what every command needs: configuration, logger and an open store
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *storage.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogJSON)

	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logging.Component(log, "storage"))
	if err != nil {
		return nil, fmt.Errorf("error initializing storage: %w", err)
	}
	return &app{cfg: cfg, log: log, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
}

// mailer returns nil when SMTP is not configured
func (a *app) mailer() notify.Mailer {
	if !a.cfg.SMTP.Configured() {
		return nil
	}
	return notify.NewSMTPMailer(a.cfg.SMTP)
}

func (a *app) content() notify.Content {
	return notify.Content{
		Wedding:     a.cfg.Wedding,
		SiteURL:     a.cfg.SiteURL,
		CountryCode: a.cfg.PhoneCountryCode,
	}
}
