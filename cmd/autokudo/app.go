package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"autokudo/internal/config"
	"autokudo/internal/publisher"
	"autokudo/internal/service"
	"autokudo/internal/source/strava"
	"autokudo/internal/status"
	"autokudo/internal/storage/postgres"
)

type app struct {
	logger        *slog.Logger
	db            *sqlx.DB
	publisher     *publisher.RabbitMQ
	console       *status.Console
	settingsStore *postgres.SettingsStore
	runStore      *postgres.RunStore
	controller    *service.Controller
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	logger.Info("connected to database")

	a.settingsStore = postgres.NewSettingsStore(db)
	a.runStore = postgres.NewRunStore(db, postgres.NewTransactionManager(db))

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.publisher = rabbitMQ
		pub = rabbitMQ
	}

	client := strava.New(strava.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Headers:           cfg.API.Headers,
		MaxAttempts:       cfg.API.Retry.MaxAttempts,
		InitialBackoff:    cfg.API.Retry.InitialBackoff,
		MaxBackoff:        cfg.API.Retry.MaxBackoff,
	}, logger)

	a.console = status.NewConsole(os.Stderr, logger)
	a.controller = service.NewController(client, client, a.console, a.runStore, pub, logger, cfg.Run)

	return a, nil
}

func (a *app) close() {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.console != nil {
		_ = a.console.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close publisher", "error", err)
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
