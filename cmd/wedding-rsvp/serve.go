package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wedding-rsvp/internal/backup"
	"wedding-rsvp/internal/handler"
	"wedding-rsvp/internal/importer"
	"wedding-rsvp/internal/logging"
	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/rsvp"
	"wedding-rsvp/internal/whatsapp"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var backupHour int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx, backupHour)
		},
	}
	cmd.Flags().IntVar(&backupHour, "backup-hour", 3, "local hour of the daily backup when S3 backups are configured, -1 disables")
	return cmd
}

func (a *app) serve(ctx context.Context, backupHour int) error {
	cfg := a.cfg
	mailer := a.mailer()
	if mailer == nil {
		a.log.Warn().Msg("SMTP is not configured, emails are disabled")
	}

	var notifiers []rsvp.Notifier
	if cfg.NotifyEmail != "" && mailer != nil {
		notifiers = append(notifiers, notify.NewEmailAlert(mailer, cfg.NotifyEmail))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, logging.Component(a.log, "webhook")))
	}
	recorder := rsvp.NewRecorder(a.store, logging.Component(a.log, "rsvp"), notifiers...)

	dispatcher := notify.NewDispatcher(a.store, mailer, a.content(),
		notify.Options{Delay: cfg.SendDelay, BulkLimit: cfg.BulkEmailLimit},
		logging.Component(a.log, "messaging"))

	if cfg.WhatsAppEnabled {
		wa, err := whatsapp.NewService(ctx, whatsapp.Config{DataDir: cfg.WhatsAppDataDir, CountryCode: cfg.PhoneCountryCode},
			logging.Component(a.log, "WhatsApp"))
		if err != nil {
			return fmt.Errorf("error initializing WhatsApp service: %w", err)
		}
		if err := wa.Connect(); err != nil {
			a.log.Warn().Err(err).Msg("WhatsApp direct sending disabled")
		} else {
			defer wa.Close()
			dispatcher.SetWhatsApp(wa)
		}
	}

	srv := handler.NewServer(a.store, recorder,
		importer.NewReconciler(a.store, logging.Component(a.log, "import")),
		dispatcher,
		handler.Config{
			AdminPassword:   cfg.AdminPassword,
			Production:      cfg.IsProduction(),
			PublicRateLimit: cfg.PublicRateLimit,
			EmailRateLimit:  cfg.EmailRateLimit,
		},
		logging.Component(a.log, "http"))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", httpSrv.Addr).Str("env", cfg.Env).Str("db", cfg.DatabaseDriver).Msg("🎉 Wedding RSVP API listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		recorder.Wait()
		return err
	})
	g.Go(func() error {
		srv.RunLimiterCleanup(gctx)
		return nil
	})

	if cfg.Backup.Configured() && backupHour >= 0 {
		client, err := backup.NewClient(ctx, cfg.Backup)
		if err != nil {
			return err
		}
		runner := backup.NewRunner(a.store, client, cfg.Backup, logging.Component(a.log, "backup"))
		g.Go(func() error {
			runner.Schedule(gctx, backupHour)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info().Msg("Goodbye! 👋")
	return nil
}
