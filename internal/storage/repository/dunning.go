package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// UpsertDunningRecord сохраняет dunning-запись пользователя. Запись одна на
// пользователя, повторное сохранение перезаписывает её целиком.
func (s *Storage) UpsertDunningRecord(ctx context.Context, r *models.DunningRecord) error {
	const op = "storage.UpsertDunningRecord"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO dunning_records (user_id, state, portal_url, expires_at,
			      detected_at, last_updated_at, payment_intent_id, invoice_id,
			      subscription_id, failure_code, failure_reason)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  ON CONFLICT (user_id) DO UPDATE SET
			      state = EXCLUDED.state,
			      portal_url = EXCLUDED.portal_url,
			      expires_at = EXCLUDED.expires_at,
			      detected_at = EXCLUDED.detected_at,
			      last_updated_at = EXCLUDED.last_updated_at,
			      payment_intent_id = EXCLUDED.payment_intent_id,
			      invoice_id = EXCLUDED.invoice_id,
			      subscription_id = EXCLUDED.subscription_id,
			      failure_code = EXCLUDED.failure_code,
			      failure_reason = EXCLUDED.failure_reason`
	_, err := s.DB.ExecContext(ctx, query,
		r.UserID, string(r.State), r.PortalURL, r.ExpiresAt, r.DetectedAt, r.LastUpdatedAt,
		r.PaymentIntentID, r.InvoiceID, r.SubscriptionID, r.FailureCode, r.FailureReason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindDunningRecord возвращает dunning-запись пользователя
// или (nil, nil), если её нет.
func (s *Storage) FindDunningRecord(ctx context.Context, userID string) (*models.DunningRecord, error) {
	const op = "storage.FindDunningRecord"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, state, portal_url, expires_at, detected_at, last_updated_at,
			      payment_intent_id, invoice_id, subscription_id, failure_code, failure_reason
			  FROM dunning_records
			  WHERE user_id = $1`
	row := s.DB.QueryRowContext(ctx, query, userID)

	r, err := scanDunningRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// ListOpenDunningRecords возвращает все записи, ещё не закрытые в OK,
// для периодического прогона переходов таймлайна.
func (s *Storage) ListOpenDunningRecords(ctx context.Context) ([]*models.DunningRecord, error) {
	const op = "storage.ListOpenDunningRecords"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, state, portal_url, expires_at, detected_at, last_updated_at,
			      payment_intent_id, invoice_id, subscription_id, failure_code, failure_reason
			  FROM dunning_records
			  WHERE state <> $1
			  ORDER BY detected_at`
	rows, err := s.DB.QueryContext(ctx, query, string(models.DunningOK))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.DunningRecord
	for rows.Next() {
		r, err := scanDunningRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func scanDunningRecord(row rowScanner) (*models.DunningRecord, error) {
	var (
		r         models.DunningRecord
		state     string
		expiresAt sql.NullTime
	)
	if err := row.Scan(&r.UserID, &state, &r.PortalURL, &expiresAt, &r.DetectedAt,
		&r.LastUpdatedAt, &r.PaymentIntentID, &r.InvoiceID, &r.SubscriptionID,
		&r.FailureCode, &r.FailureReason); err != nil {
		return nil, err
	}
	r.State = models.DunningState(state)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		r.ExpiresAt = &t
	}
	r.DetectedAt = r.DetectedAt.UTC()
	r.LastUpdatedAt = r.LastUpdatedAt.UTC()
	return &r, nil
}
