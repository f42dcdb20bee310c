// Package status реализует HTTP-обработчик проверки статуса пробного периода.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Service описывает интерфейс бизнес-логики пробных периодов.
type Service interface {
	CheckTrialStatus(ctx context.Context, userID, productID string) (*models.TrialRecord, error)
}

// Handler обрабатывает запросы статуса пробного периода.
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

// ServeHTTP обрабатывает HTTP-запрос на проверку статуса пробного периода.
// Продукт передается query-параметром product_id.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trial.status"

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

	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		log.Error("missing product_id query parameter")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing product_id"))
		return
	}

	record, err := h.service.CheckTrialStatus(r.Context(), userID, productID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Info("trial not found",
				slog.String("user_id", userID),
				slog.String("product_id", productID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("trial not found"))
			return
		}
		log.Error("failed to check trial status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check trial status"))
		return
	}

	log.Info("trial status checked",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.String("status", string(record.Status)))
	render.JSON(w, r, response.StatusOKWithData(record))
}
