// Package services содержит read-path бизнес-логику прав пользователя.
// Перед каждой отдачей наружу счётчики использования лениво сбрасываются
// и сохраняются: фоновых часов у сброса нет.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// EntitlementRepository определяет методы хранилища прав для read-path.
type EntitlementRepository interface {
	ListEntitlements(ctx context.Context, userID string) ([]*models.Entitlement, error)
	FindEntitlement(ctx context.Context, userID, key string) (*models.Entitlement, error)
	UpdateEntitlement(ctx context.Context, e *models.Entitlement) error
}

// EntitlementService отдает права пользователя с актуальными счётчиками.
type EntitlementService struct {
	repo EntitlementRepository
	log  *slog.Logger
}

// NewEntitlementService создает новый экземпляр EntitlementService.
func NewEntitlementService(repo EntitlementRepository, log *slog.Logger) *EntitlementService {
	return &EntitlementService{
		repo: repo,
		log:  log,
	}
}

// GetUserEntitlements возвращает все права пользователя, предварительно
// применив назревшие сбросы счётчиков.
func (s *EntitlementService) GetUserEntitlements(ctx context.Context, userID string) ([]*models.Entitlement, error) {
	const op = "entitlements.GetUserEntitlements"
	now := time.Now().UTC()

	entitlements, err := s.repo.ListEntitlements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, e := range entitlements {
		if err := s.applyLazyReset(ctx, e, now); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return entitlements, nil
}

// GetUserEntitlementByKey возвращает одно право пользователя по ключу
// или models.ErrNotFound, если права нет.
func (s *EntitlementService) GetUserEntitlementByKey(ctx context.Context, userID, key string) (*models.Entitlement, error) {
	const op = "entitlements.GetUserEntitlementByKey"
	now := time.Now().UTC()

	e, err := s.repo.FindEntitlement(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%s: entitlement %s for user %s: %w", op, key, userID, models.ErrNotFound)
	}

	if err := s.applyLazyReset(ctx, e, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// applyLazyReset сбрасывает счётчик, если его граница наступила, и сразу
// сохраняет результат.
func (s *EntitlementService) applyLazyReset(ctx context.Context, e *models.Entitlement, now time.Time) error {
	if e.Usage == nil || !e.Usage.ShouldReset(now) {
		return nil
	}
	e.Usage.Reset(now)
	if err := s.repo.UpdateEntitlement(ctx, e); err != nil {
		return fmt.Errorf("persist usage reset: %w", err)
	}
	s.log.Info("usage counter reset",
		slog.String("user_id", e.UserID),
		slog.String("entitlement_key", e.Key))
	return nil
}
