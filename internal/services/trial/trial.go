// Package services реализует пробные периоды: один trial на пару
// пользователь+продукт, выдача прав продукта на срок trial-а и ленивое
// истечение при проверке статуса.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// TrialRepository определяет методы хранилища trial-записей.
type TrialRepository interface {
	FindTrial(ctx context.Context, userID, productID string) (*models.TrialRecord, error)
	SaveTrial(ctx context.Context, t *models.TrialRecord) error
	UpdateTrial(ctx context.Context, t *models.TrialRecord) error
}

// ProductCatalog определяет read-only доступ к каталогу продуктов.
type ProductCatalog interface {
	FindByID(ctx context.Context, productID string) (*models.ProductDefinition, error)
}

// Granter выдает права продукта пользователю (путь выдачи реконсайлера).
type Granter interface {
	GrantProduct(ctx context.Context, userID, productID string, expiresAt *time.Time) error
}

// ErrTrialAlreadyUsed пробный период по продукту уже использован.
var ErrTrialAlreadyUsed = models.NewDomainError("trial already used for this product")

// TrialService управляет пробными периодами.
type TrialService struct {
	repo     TrialRepository
	products ProductCatalog
	granter  Granter
	duration time.Duration
	log      *slog.Logger
}

// NewTrialService создает новый экземпляр TrialService.
func NewTrialService(
	repo TrialRepository,
	products ProductCatalog,
	granter Granter,
	duration time.Duration,
	log *slog.Logger,
) *TrialService {
	return &TrialService{
		repo:     repo,
		products: products,
		granter:  granter,
		duration: duration,
		log:      log,
	}
}

// StartTrial запускает пробный период продукта для пользователя и выдает
// права продукта до его конца. Повторный trial по тому же продукту —
// доменная ошибка, независимо от исхода первого.
func (s *TrialService) StartTrial(ctx context.Context, userID, productID string) (*models.TrialRecord, error) {
	const op = "trial.StartTrial"
	now := time.Now().UTC()

	existing, err := s.repo.FindTrial(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrTrialAlreadyUsed)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !product.IsActive {
		return nil, fmt.Errorf("%s: %w", op,
			models.NewDomainError("product %s is not active", productID))
	}

	expiresAt := now.Add(s.duration)
	record := &models.TrialRecord{
		UserID:    userID,
		ProductID: productID,
		StartedAt: now,
		ExpiresAt: expiresAt,
		Status:    models.TrialActive,
	}
	if err := s.repo.SaveTrial(ctx, record); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.granter.GrantProduct(ctx, userID, productID, &expiresAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("trial started",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Time("expires_at", expiresAt))
	return record, nil
}

// CheckTrialStatus возвращает trial-запись пользователя по продукту,
// лениво помечая просроченный trial истёкшим. Отсутствие записи —
// models.ErrNotFound.
func (s *TrialService) CheckTrialStatus(ctx context.Context, userID, productID string) (*models.TrialRecord, error) {
	const op = "trial.CheckTrialStatus"
	now := time.Now().UTC()

	record, err := s.repo.FindTrial(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%s: trial for user %s product %s: %w",
			op, userID, productID, models.ErrNotFound)
	}

	if record.Status == models.TrialActive && record.IsExpired(now) {
		record.MarkExpired()
		if err := s.repo.UpdateTrial(ctx, record); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("trial expired",
			slog.String("user_id", userID),
			slog.String("product_id", productID))
	}
	return record, nil
}
