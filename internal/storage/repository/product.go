package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// UpsertProduct сохраняет определение продукта. Определение хранится
// в JSONB целиком: каталог читается намного чаще, чем меняется.
func (s *Storage) UpsertProduct(ctx context.Context, p *models.ProductDefinition) error {
	const op = "storage.UpsertProduct"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	definition, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO products (product_id, definition)
			  VALUES ($1, $2)
			  ON CONFLICT (product_id) DO UPDATE SET definition = EXCLUDED.definition`
	_, err = s.DB.ExecContext(ctx, query, p.ProductID, definition)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindProduct возвращает определение продукта по его идентификатору.
// Отсутствующий продукт — models.ErrNotFound.
func (s *Storage) FindProduct(ctx context.Context, productID string) (*models.ProductDefinition, error) {
	const op = "storage.FindProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT definition FROM products WHERE product_id = $1`
	var definition []byte
	err := s.DB.QueryRowContext(ctx, query, productID).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: product %s: %w", op, productID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var p models.ProductDefinition
	if err := json.Unmarshal(definition, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// ListProducts возвращает все определения продуктов каталога.
func (s *Storage) ListProducts(ctx context.Context) ([]*models.ProductDefinition, error) {
	const op = "storage.ListProducts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT definition FROM products ORDER BY product_id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ProductDefinition
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		var p models.ProductDefinition
		if err := json.Unmarshal(definition, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
