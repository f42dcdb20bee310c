// Package billingissue реализует HTTP-обработчик для получения платёжного
// статуса пользователя: текущее состояние dunning-процесса, сообщение и
// рекомендуемые действия.
package billingissue

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

// Service описывает интерфейс бизнес-логики платёжного статуса.
type Service interface {
	GetBillingIssue(ctx context.Context, userID string) (*models.BillingIssue, error)
}

// Handler обрабатывает запросы платёжного статуса пользователя.
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

// ServeHTTP обрабатывает HTTP-запрос на получение платёжного статуса.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billingissue.Get"

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

	issue, err := h.service.GetBillingIssue(r.Context(), userID)
	if err != nil {
		log.Error("failed to get billing issue", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get billing issue"))
		return
	}

	log.Info("billing issue fetched",
		slog.String("user_id", userID),
		slog.String("state", string(issue.State)))
	render.JSON(w, r, response.StatusOKWithData(issue))
}
