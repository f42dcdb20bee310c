package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IsPaymentProcessed проверяет, выдавались ли уже права за платеж
// с данным paymentIntentId.
func (s *Storage) IsPaymentProcessed(ctx context.Context, paymentIntentID string) (bool, error) {
	const op = "storage.IsPaymentProcessed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT processed_at FROM processed_payments
			  WHERE payment_intent_id = $1`
	var processedAt time.Time
	err := s.DB.QueryRowContext(ctx, query, paymentIntentID).Scan(&processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// MarkPaymentProcessed помечает платеж обработанным. Повторная пометка
// того же paymentIntentId не является ошибкой.
func (s *Storage) MarkPaymentProcessed(ctx context.Context, paymentIntentID string) error {
	const op = "storage.MarkPaymentProcessed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO processed_payments (payment_intent_id, processed_at)
			  VALUES ($1, NOW())
			  ON CONFLICT (payment_intent_id) DO NOTHING`
	_, err := s.DB.ExecContext(ctx, query, paymentIntentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
