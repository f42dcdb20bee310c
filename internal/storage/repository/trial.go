package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// SaveTrial сохраняет запись о пробном периоде.
func (s *Storage) SaveTrial(ctx context.Context, t *models.TrialRecord) error {
	const op = "storage.SaveTrial"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO trial_records (user_id, product_id, started_at, expires_at, status)
			  VALUES ($1, $2, $3, $4, $5)`
	_, err := s.DB.ExecContext(ctx, query,
		t.UserID, t.ProductID, t.StartedAt, t.ExpiresAt, string(t.Status))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateTrial перезаписывает статус пробного периода.
func (s *Storage) UpdateTrial(ctx context.Context, t *models.TrialRecord) error {
	const op = "storage.UpdateTrial"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE trial_records
			  SET started_at = $1, expires_at = $2, status = $3
			  WHERE user_id = $4 AND product_id = $5`
	_, err := s.DB.ExecContext(ctx, query,
		t.StartedAt, t.ExpiresAt, string(t.Status), t.UserID, t.ProductID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindTrial возвращает запись о пробном периоде пользователя для продукта
// или (nil, nil), если пробный период не запускался.
func (s *Storage) FindTrial(ctx context.Context, userID, productID string) (*models.TrialRecord, error) {
	const op = "storage.FindTrial"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, product_id, started_at, expires_at, status
			  FROM trial_records
			  WHERE user_id = $1 AND product_id = $2`
	row := s.DB.QueryRowContext(ctx, query, userID, productID)

	var (
		t      models.TrialRecord
		status string
	)
	err := row.Scan(&t.UserID, &t.ProductID, &t.StartedAt, &t.ExpiresAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.Status = models.TrialStatus(status)
	t.StartedAt = t.StartedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return &t, nil
}
