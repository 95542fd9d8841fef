package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"basket-booking/internal/booking"
	"basket-booking/internal/cache"
	"basket-booking/internal/config"
	"basket-booking/internal/logging"
	"basket-booking/internal/server"
	"basket-booking/internal/sheets"
	"basket-booking/internal/storage"
	"basket-booking/internal/tgbot"
)

func main() {
	cfg, err := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, err := openTable(ctx, cfg)
	if err != nil {
		slog.Error("open store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	store := sheets.NewStore(table)
	if err := store.Provision(ctx); err != nil {
		slog.Error("provision sheets", "err", err)
		os.Exit(1)
	}

	now := func() time.Time { return time.Now().In(cfg.Location) }
	loader := booking.NewLoader(store, cache.New[*booking.Snapshot](cfg.CacheTTL))
	families := booking.NewFamilies(store, cache.New[*booking.FamilyData](cfg.FamilyCacheTTL))
	opts := []booking.Option{
		booking.WithFamilies(families),
		booking.WithClock(now),
		booking.WithSerializedAdmission(cfg.Serialize),
	}

	if cfg.ArchiveEnabled() {
		up, err := storage.NewR2Uploader(ctx, storage.R2Config{
			AccountID:       cfg.ArchiveAccountID,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			BucketName:      cfg.ArchiveBucket,
			PublicBaseURL:   cfg.ArchivePublicBaseURL,
		})
		if err != nil {
			slog.Error("confirmation archive", "err", err)
			os.Exit(1)
		}
		opts = append(opts, booking.WithArchiver(storage.NewConfirmationArchive(up)))
		slog.Info("confirmation archive enabled", "bucket", cfg.ArchiveBucket)
	}

	var api *tgbotapi.BotAPI
	if cfg.TelegramEnabled() {
		if api, err = tgbot.Connect(cfg.TelegramToken); err != nil {
			// The web front end works without the bot.
			slog.Error("telegram disabled", "err", err)
			api = nil
		} else if cfg.NotifyChatID != 0 {
			opts = append(opts, booking.WithNotifier(tgbot.NewNotifier(api, cfg.NotifyChatID)))
		}
	}

	svc := booking.NewService(store, loader, opts...)

	httpSrv, err := server.New(cfg, svc)
	if err != nil {
		slog.Error("http server", "err", err)
		os.Exit(1)
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr, "backend", cfg.StoreBackend)
		serverErrors <- httpSrv.ListenAndServe()
	}()

	if api != nil {
		botApp := tgbot.New(cfg, svc, api)
		go func() {
			if err := botApp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("telegram bot stopped", "err", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "err", err)
			os.Exit(1)
		}
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "err", err)
			_ = httpSrv.Close()
		}
	}
	slog.Info("bye")
}

// openTable returns the remote table for the configured backend. The
// sheets backend is wrapped in the retry policy.
func openTable(ctx context.Context, cfg config.Config) (sheets.Table, error) {
	if cfg.StoreBackend == config.BackendMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return sheets.NewMemTable(), nil
	}
	client, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	slog.Info("using google sheets store", "spreadsheet", client.SpreadsheetID())
	return sheets.WithRetry(client, sheets.RetryPolicy{
		MaxRetries: cfg.RetryAttempts,
		BaseDelay:  cfg.RetryBaseDelay,
	}), nil
}
