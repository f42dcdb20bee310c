// Package entitlementapi предоставляет маршруты для основного приложения.
package entitlementapi

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/billingissue"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/entitlement/list"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/entitlement/read"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/health"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/trial/start"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/trial/status"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	dunningservice "github.com/magabrotheeeer/entitlement-engine/internal/services/dunning"
	entitlementservice "github.com/magabrotheeeer/entitlement-engine/internal/services/entitlements"
	trialservice "github.com/magabrotheeeer/entitlement-engine/internal/services/trial"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	tokenMaker jwt.Maker,
	entitlementService *entitlementservice.EntitlementService,
	trialService *trialservice.TrialService,
	dunningService *dunningservice.DunningService,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			// Платёжный статус должен оставаться доступным даже
			// при приостановленном аккаунте, иначе пользователю
			// нечем выйти из suspended.
			r.Get("/billing/issue", billingissue.New(logger, dunningService).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.SuspensionGateMiddleware(logger, dunningService))
				r.Get("/entitlements", list.New(logger, entitlementService).ServeHTTP)
				r.Get("/entitlements/{key}", read.New(logger, entitlementService).ServeHTTP)
				r.Post("/trials", start.New(logger, trialService).ServeHTTP)
				r.Get("/trials/status", status.New(logger, trialService).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
