package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/promolabs/promobot/core/config"
	coredatabase "github.com/promolabs/promobot/core/database"
	"github.com/promolabs/promobot/core/logger"
	tg "github.com/promolabs/promobot/core/telegram"
	"github.com/promolabs/promobot/internal/bot"
	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/notify"
	"github.com/promolabs/promobot/internal/users"
	"github.com/promolabs/promobot/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "promobot:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := coreconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Shutdown()

	persister, cleanup, err := buildPersister(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	store := users.NewStore(persister, cfg.Storage.FlushInterval())
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load user records: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.App.Error("final store flush failed",
				slog.String("event", "shutdown.flush_failed"),
				slog.String("err", err.Error()),
			)
		}
	}()

	notifier := notify.NewTelegramNotifier(cfg.Moderation.AdminChannelID)
	importer := moderation.NewImporter(store, notifier, cfg.Moderation.MinContacts, cfg.Moderation.PreviewLimit)
	workflow := moderation.NewWorkflow(store, notifier, cfg.Moderation.OperatorIDs)
	gate := moderation.NewGate(store)

	api := web.NewAPI(store, importer, gate)
	var google *web.GoogleImporter
	if cfg.Google.ClientID != "" {
		google = web.NewGoogleImporter(cfg, importer)
	}
	server := web.NewServer(cfg, api, google)

	httpErr := make(chan error, 1)
	go func() { httpErr <- server.Run(ctx) }()

	app := bot.NewApp(cfg, store, importer, workflow, gate, notifier)
	botErr := tg.RunTelegram(ctx, app.RunOptions())

	stop()
	if err := <-httpErr; err != nil {
		logger.App.Error("http server failed",
			slog.String("event", "shutdown.http_failed"),
			slog.String("err", err.Error()),
		)
	}
	return botErr
}

func buildPersister(cfg *coreconfig.Config) (users.Persister, func(), error) {
	noop := func() {}
	switch cfg.Storage.Driver {
	case coreconfig.StorageDriverPostgres:
		if err := coredatabase.WaitForPostgres(coredatabase.DSN(cfg.Database), 30*time.Second); err != nil {
			return nil, noop, fmt.Errorf("wait for database: %w", err)
		}
		db, err := coredatabase.Connect(cfg.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("connect database: %w", err)
		}
		if err := coredatabase.RunMigrations(cfg.Database); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("run migrations: %w", err)
		}
		return users.NewPostgresPersister(db), func() { _ = db.Close() }, nil
	default:
		p, err := users.NewFilePersister(cfg.Storage.FilePath)
		if err != nil {
			return nil, noop, fmt.Errorf("init file storage: %w", err)
		}
		return p, noop, nil
	}
}
