package entitlementapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/cache"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-engine/internal/migrations"
	"github.com/magabrotheeeer/entitlement-engine/internal/rabbitmq"
	dunningservice "github.com/magabrotheeeer/entitlement-engine/internal/services/dunning"
	entitlementservice "github.com/magabrotheeeer/entitlement-engine/internal/services/entitlements"
	reconcilerservice "github.com/magabrotheeeer/entitlement-engine/internal/services/reconciler"
	trialservice "github.com/magabrotheeeer/entitlement-engine/internal/services/trial"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}
	catalog := cache.NewCachedCatalog(db, cacheRedis)

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetUpdatesQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}
	publisher := rabbitmq.NewEntitlementPublisher(ch)

	reconcilerService := reconcilerservice.NewReconcilerService(db, catalog, db, db, publisher, logger)
	entitlementService := entitlementservice.NewEntitlementService(db, logger)
	dunningService := dunningservice.NewDunningService(db, publisher, logger)
	trialService := trialservice.NewTrialService(db, catalog, reconcilerService, cfg.TrialDuration, logger)

	tokenMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()

	RegisterRoutes(router, logger, tokenMaker, entitlementService, trialService, dunningService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.ch.Close(); cerr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", cerr))
		}
		if cerr := a.conn.Close(); cerr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", cerr))
		}
		a.db.DB.Close()
		return err
	}
}
