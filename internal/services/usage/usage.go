// Package services обрабатывает события потребления usage-based прав:
// списание против лимита с ленивым сбросом счётчика.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// EntitlementRepository определяет методы хранилища прав для списания.
type EntitlementRepository interface {
	FindEntitlement(ctx context.Context, userID, key string) (*models.Entitlement, error)
	UpdateEntitlement(ctx context.Context, e *models.Entitlement) error
}

// UsageService списывает потребление с счётчиков прав.
type UsageService struct {
	repo     EntitlementRepository
	validate *validator.Validate
	log      *slog.Logger
}

// NewUsageService создает новый экземпляр UsageService.
func NewUsageService(repo EntitlementRepository, log *slog.Logger) *UsageService {
	return &UsageService{
		repo:     repo,
		validate: validator.New(),
		log:      log,
	}
}

// ProcessMessage разбирает сырое usage-сообщение очереди и применяет списание.
//
// Доменные отказы (нет права, право неактивно, лимит исчерпан, невалидное
// событие) подтверждаются и не возвращаются в очередь: повторная доставка
// их не исправит. В очередь возвращаются только ошибки хранилища.
func (s *UsageService) ProcessMessage(ctx context.Context, body []byte) error {
	const op = "usage.ProcessMessage"

	var event models.UsageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.validate.Struct(event); err != nil {
		s.log.Warn("skipping invalid usage event", sl.Err(err))
		return nil
	}

	if err := s.Execute(ctx, event); err != nil {
		if models.IsDomainError(err) || errors.Is(err, models.ErrNotFound) {
			s.log.Warn("usage event rejected",
				slog.String("user_id", event.UserID),
				slog.String("entitlement_key", event.EntitlementKey),
				sl.Err(err))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Execute списывает amount события с соответствующего счётчика.
// Отсутствующий amount трактуется как 1.
func (s *UsageService) Execute(ctx context.Context, event models.UsageEvent) error {
	const op = "usage.Execute"
	now := time.Now().UTC()

	amount := event.Amount
	if amount == 0 {
		amount = 1
	}

	e, err := s.repo.FindEntitlement(ctx, event.UserID, event.EntitlementKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if e == nil {
		return fmt.Errorf("%s: entitlement %s for user %s: %w",
			op, event.EntitlementKey, event.UserID, models.ErrNotFound)
	}

	if !e.IsActive(now) {
		return fmt.Errorf("%s: %w", op,
			models.NewDomainError("entitlement %s is not active", event.EntitlementKey))
	}
	if e.Usage == nil {
		return fmt.Errorf("%s: %w", op,
			models.NewDomainError("entitlement %s is not usage-metered", event.EntitlementKey))
	}

	// Сброс сохраняется отдельно от списания: даже отклонённое списание
	// не должно терять наступившую границу.
	if e.Usage.ShouldReset(now) {
		e.Usage.Reset(now)
		if err := s.repo.UpdateEntitlement(ctx, e); err != nil {
			return fmt.Errorf("%s: persist usage reset: %w", op, err)
		}
	}

	if err := e.Usage.Consume(amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateEntitlement(ctx, e); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("usage consumed",
		slog.String("user_id", event.UserID),
		slog.String("entitlement_key", event.EntitlementKey),
		slog.Int("amount", amount),
		slog.Int("used", e.Usage.Used),
		slog.Int("limit", e.Usage.Limit))
	return nil
}
