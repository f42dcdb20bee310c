// Package list реализует HTTP-обработчик для получения всех прав пользователя.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Service описывает интерфейс бизнес-логики чтения прав.
type Service interface {
	GetUserEntitlements(ctx context.Context, userID string) ([]*models.Entitlement, error)
}

// Handler обрабатывает запросы списка прав пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP обрабатывает HTTP-запрос на получение списка прав.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || userID == "" {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.service.GetUserEntitlements(r.Context(), userID)
	if err != nil {
		log.Error("failed to list entitlements", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list entitlements"))
		return
	}

	log.Info("entitlements listed", slog.String("user_id", userID), slog.Int("count", len(res)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"count":        len(res),
		"entitlements": res,
	}))
}
