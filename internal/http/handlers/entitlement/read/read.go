// Package read реализует HTTP-обработчик для получения одного права
// пользователя по ключу.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Service описывает интерфейс бизнес-логики чтения права по ключу.
type Service interface {
	GetUserEntitlementByKey(ctx context.Context, userID, key string) (*models.Entitlement, error)
}

// Handler обрабатывает запросы одного права пользователя.
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

// ServeHTTP обрабатывает HTTP-запрос на получение права по ключу из URL.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.read"

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

	key := chi.URLParam(r, "key")
	if key == "" {
		log.Error("missing entitlement key in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing entitlement key"))
		return
	}

	res, err := h.service.GetUserEntitlementByKey(r.Context(), userID, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Info("entitlement not found",
				slog.String("user_id", userID),
				slog.String("entitlement_key", key))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("entitlement not found"))
			return
		}
		log.Error("failed to read entitlement", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read entitlement"))
		return
	}

	log.Info("entitlement read",
		slog.String("user_id", userID),
		slog.String("entitlement_key", key))
	render.JSON(w, r, response.StatusOKWithData(res))
}
