// Package usageprocessor содержит приложение-консьюмер событий потребления,
// списывающих единицы usage-metered прав.
package usageprocessor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/rabbitmq"
	usageservice "github.com/magabrotheeeer/entitlement-engine/internal/services/usage"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// App представляет приложение обработки событий потребления.
type App struct {
	usageService *usageservice.UsageService
	conn         *amqp.Connection
	ch           *amqp.Channel
	logger       *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения обработки событий потребления.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetUsageQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	usageService := usageservice.NewUsageService(db, logger)

	return &App{
		usageService: usageService,
		conn:         conn,
		ch:           ch,
		logger:       logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает консьюмер событий потребления.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.UsageQueue, func(body []byte) error {
		return a.usageService.ProcessMessage(ctx, body)
	})
	if err != nil {
		a.logger.Error("failed to start usage events consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()

	a.logger.Info("shutting down usage processor")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
