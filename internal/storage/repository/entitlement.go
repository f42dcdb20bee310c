package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// SaveEntitlement вставляет новое право пользователя. Счётчик использования
// сериализуется в JSONB целиком, NULL означает право без счётчика.
func (s *Storage) SaveEntitlement(ctx context.Context, e *models.Entitlement) error {
	const op = "storage.SaveEntitlement"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	usage, err := marshalUsage(e.Usage)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO entitlements (user_id, entitlement_key, role, status,
			      granted_at, expires_at, usage)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.DB.ExecContext(ctx, query,
		e.UserID, e.Key, e.Role, string(e.Status), e.GrantedAt, e.ExpiresAt, usage)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateEntitlement полностью перезаписывает существующее право.
func (s *Storage) UpdateEntitlement(ctx context.Context, e *models.Entitlement) error {
	const op = "storage.UpdateEntitlement"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	usage, err := marshalUsage(e.Usage)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE entitlements
			  SET role = $1, status = $2, granted_at = $3, expires_at = $4, usage = $5
			  WHERE user_id = $6 AND entitlement_key = $7`
	_, err = s.DB.ExecContext(ctx, query,
		e.Role, string(e.Status), e.GrantedAt, e.ExpiresAt, usage, e.UserID, e.Key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindEntitlement возвращает право по паре (user_id, entitlement_key)
// или (nil, nil), если записи нет.
func (s *Storage) FindEntitlement(ctx context.Context, userID, key string) (*models.Entitlement, error) {
	const op = "storage.FindEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, entitlement_key, role, status, granted_at, expires_at, usage
			  FROM entitlements
			  WHERE user_id = $1 AND entitlement_key = $2`
	row := s.DB.QueryRowContext(ctx, query, userID, key)

	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// ListEntitlements возвращает все права пользователя в порядке выдачи.
func (s *Storage) ListEntitlements(ctx context.Context, userID string) ([]*models.Entitlement, error) {
	const op = "storage.ListEntitlements"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, entitlement_key, role, status, granted_at, expires_at, usage
			  FROM entitlements
			  WHERE user_id = $1
			  ORDER BY granted_at, entitlement_key`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (*models.Entitlement, error) {
	var (
		e         models.Entitlement
		status    string
		expiresAt sql.NullTime
		usage     []byte
	)
	if err := row.Scan(&e.UserID, &e.Key, &e.Role, &status, &e.GrantedAt, &expiresAt, &usage); err != nil {
		return nil, err
	}
	e.Status = models.EntitlementStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		e.ExpiresAt = &t
	}
	e.GrantedAt = e.GrantedAt.UTC()
	if len(usage) > 0 {
		var counter models.UsageCounter
		if err := json.Unmarshal(usage, &counter); err != nil {
			return nil, err
		}
		normalizeUsageTimes(&counter)
		e.Usage = &counter
	}
	return &e, nil
}

func marshalUsage(u *models.UsageCounter) ([]byte, error) {
	if u == nil {
		return nil, nil
	}
	return json.Marshal(u)
}

func normalizeUsageTimes(u *models.UsageCounter) {
	if u.ResetAt != nil {
		t := u.ResetAt.UTC()
		u.ResetAt = &t
	}
}
