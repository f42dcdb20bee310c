// Package dunningprocessor содержит приложение dunning-подсистемы: консьюмер
// платёжных событий и фоновый тикер переходов по таймлайну.
package dunningprocessor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/rabbitmq"
	dunningservice "github.com/magabrotheeeer/entitlement-engine/internal/services/dunning"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// App представляет приложение dunning-подсистемы.
type App struct {
	dunningService *dunningservice.DunningService
	tickInterval   time.Duration
	conn           *amqp.Connection
	ch             *amqp.Channel
	logger         *slog.Logger
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

// New создает новый экземпляр приложения dunning-подсистемы.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	// Переход в suspended публикует событие отзыва прав, поэтому
	// объявляется и очередь исходящих событий.
	queues := append(rabbitmq.GetBillingQueues(), rabbitmq.GetUpdatesQueues()...)
	ch, err := rabbitmq.SetupChannel(conn, queues)
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

	publisher := rabbitmq.NewEntitlementPublisher(ch)
	dunningService := dunningservice.NewDunningService(db, publisher, logger)

	return &App{
		dunningService: dunningService,
		tickInterval:   cfg.DunningTickInterval,
		conn:           conn,
		ch:             ch,
		logger:         logger,
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

// Run запускает консьюмер платёжных событий и тикер переходов.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.DunningQueue, func(body []byte) error {
		return a.dunningService.ProcessMessage(ctx, body)
	})
	if err != nil {
		a.logger.Error("failed to start dunning events consumer", slog.Any("err", err))
		return err
	}

	go a.dunningService.Run(ctx, a.tickInterval)

	<-ctx.Done()

	a.logger.Info("shutting down dunning processor")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
