package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// catalogTTL время жизни кэша определения продукта. Каталог меняется редко,
// читается на каждом событии биллинга.
const catalogTTL = time.Hour

// ProductStore нижележащее хранилище каталога продуктов.
type ProductStore interface {
	FindProduct(ctx context.Context, productID string) (*models.ProductDefinition, error)
	UpsertProduct(ctx context.Context, p *models.ProductDefinition) error
}

// JSONCache минимальный интерфейс кэша, реализуемый Cache.
type JSONCache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// CachedCatalog read-through кэш каталога продуктов. Промахи и ошибки кэша
// не фатальны: чтение уходит в хранилище, ошибка кэша только логируется
// вызывающей стороной через возврат основного результата.
type CachedCatalog struct {
	store ProductStore
	cache JSONCache
}

// NewCachedCatalog создает новый CachedCatalog.
func NewCachedCatalog(store ProductStore, cache JSONCache) *CachedCatalog {
	return &CachedCatalog{store: store, cache: cache}
}

func productKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}

// FindByID возвращает определение продукта, сначала пробуя кэш.
func (c *CachedCatalog) FindByID(ctx context.Context, productID string) (*models.ProductDefinition, error) {
	var cached models.ProductDefinition
	found, err := c.cache.Get(productKey(productID), &cached)
	if err == nil && found {
		return &cached, nil
	}

	p, err := c.store.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	_ = c.cache.Set(productKey(productID), p, catalogTTL)
	return p, nil
}

// Upsert сохраняет определение продукта и инвалидирует кэш.
func (c *CachedCatalog) Upsert(ctx context.Context, p *models.ProductDefinition) error {
	if err := c.store.UpsertProduct(ctx, p); err != nil {
		return err
	}
	return c.cache.Invalidate(productKey(p.ProductID))
}
