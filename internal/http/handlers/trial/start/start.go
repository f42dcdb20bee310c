// Package start реализует HTTP-обработчик запуска пробного периода продукта.
package start

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	trialservice "github.com/magabrotheeeer/entitlement-engine/internal/services/trial"
)

// Request — входные данные для запуска пробного периода.
type Request struct {
	ProductID string `json:"product_id" validate:"required"`
}

// Service описывает интерфейс бизнес-логики пробных периодов.
type Service interface {
	StartTrial(ctx context.Context, userID, productID string) (*models.TrialRecord, error)
}

// Handler обрабатывает запросы запуска пробного периода.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает HTTP-запрос на запуск пробного периода.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trial.start"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	record, err := h.service.StartTrial(r.Context(), userID, req.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, trialservice.ErrTrialAlreadyUsed):
			log.Info("trial already used",
				slog.String("user_id", userID),
				slog.String("product_id", req.ProductID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("trial already used for this product"))
		case errors.Is(err, models.ErrNotFound):
			log.Info("product not found", slog.String("product_id", req.ProductID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("product not found"))
		case models.IsDomainError(err):
			log.Error("trial rejected", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("product is not available for trial"))
		default:
			log.Error("failed to start trial", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not start trial"))
		}
		return
	}

	log.Info("trial started",
		slog.String("user_id", userID),
		slog.String("product_id", req.ProductID))
	render.JSON(w, r, response.StatusOKWithData(record))
}
