// Package entitlementprocessor содержит приложение-консьюмер событий биллинга,
// которое сводит права пользователей к состоянию подписки.
package entitlementprocessor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/rabbitmq"
	reconcilerservice "github.com/magabrotheeeer/entitlement-engine/internal/services/reconciler"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

// App представляет приложение обработки событий биллинга.
type App struct {
	reconcilerService *reconcilerservice.ReconcilerService
	conn              *amqp.Connection
	ch                *amqp.Channel
	logger            *slog.Logger
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

// New создает новый экземпляр приложения обработки событий биллинга.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	// Кроме входных очередей биллинга объявляется и очередь исходящих
	// событий entitlement.*, которые публикует reconciler.
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

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}
	catalog := cache.NewCachedCatalog(db, cacheRedis)

	publisher := rabbitmq.NewEntitlementPublisher(ch)
	reconcilerService := reconcilerservice.NewReconcilerService(db, catalog, db, db, publisher, logger)

	return &App{
		reconcilerService: reconcilerService,
		conn:              conn,
		ch:                ch,
		logger:            logger,
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

// Run запускает консьюмер событий биллинга.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.EntitlementsQueue, func(body []byte) error {
		return a.reconcilerService.ProcessMessage(ctx, body)
	})
	if err != nil {
		a.logger.Error("failed to start billing events consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()

	a.logger.Info("shutting down entitlement processor")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
