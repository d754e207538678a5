package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"recurio/internal/bot"
	"recurio/internal/httpapi"
	"recurio/internal/notion"
	"recurio/internal/service"
)

const sessionPurgeTime = "03:30"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the periodic sync and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		runner   *service.SyncRunner
		notifier service.Notifier
		tg       *bot.Bot
	)
	if a.cfg.TelegramToken != "" {
		tg, err = bot.New(a.cfg.TelegramToken, a.cfg.TelegramChatID, func(ctx context.Context) []*service.SyncReport {
			return runner.RunAll(ctx, "telegram")
		}, a.runs)
		if err != nil {
			return err
		}
		if a.cfg.TelegramChatID != 0 {
			notifier = tg
		}
	}
	runner = service.NewSyncRunner(a.targets, a.runs, notifier, a.cfg.SyncTimeout)

	scheduler := service.NewSchedulerService(time.Local)
	if a.cfg.SyncInterval > 0 {
		if _, err := scheduler.ScheduleInterval(a.cfg.SyncInterval, func() {
			runner.RunAll(ctx, "schedule")
		}); err != nil {
			return err
		}
	}
	if _, err := scheduler.ScheduleDaily(sessionPurgeTime, func() {
		n, err := a.sessions.PurgeExpired(ctx)
		if err != nil {
			slog.Error("purge expired sessions", "error", err)
			return
		}
		slog.Info("expired sessions purged", "count", n)
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	if tg != nil {
		go func() {
			if err := tg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("bot stopped", "error", err)
			}
		}()
	}

	srv := httpapi.NewServer(httpapi.Options{
		Credentials:       a.creds,
		Sessions:          a.sessions,
		OAuth:             notion.NewOAuth(a.cfg.NotionClientID, a.cfg.NotionClientSecret, a.cfg.NotionRedirectURL, notion.WithVersion(a.cfg.NotionVersion)),
		OpenStore:         a.storeFor,
		Recorder:          a.runs,
		AppURL:            a.cfg.AppURL,
		DefaultCredential: a.staticCredential(),
	})
	slog.Info("recurio started",
		"backend", a.cfg.StoreBackend,
		"sync_interval", a.cfg.SyncInterval,
		"credential_policy", a.creds.Policy().String(),
	)
	err = srv.Run(ctx, a.cfg.HTTPAddr)
	slog.Info("shutdown complete")
	return err
}
