package cache

import (
	"context"
	"testing"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type StoreMock struct{ mock.Mock }

func (m *StoreMock) FindProduct(ctx context.Context, productID string) (*models.ProductDefinition, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductDefinition), args.Error(1)
}
func (m *StoreMock) UpsertProduct(ctx context.Context, p *models.ProductDefinition) error {
	return m.Called(ctx, p).Error(0)
}

func TestCachedCatalog_FindByID(t *testing.T) {
	c := setupTestCache(t)
	store := new(StoreMock)
	catalog := NewCachedCatalog(store, c)

	product := &models.ProductDefinition{
		ProductID:    "prod_premium",
		Name:         "Premium",
		Type:         models.ProductSubscription,
		Entitlements: []string{"premium_access"},
		IsActive:     true,
	}

	// первый запрос идет в хранилище и наполняет кэш
	store.On("FindProduct", mock.Anything, "prod_premium").Return(product, nil).Once()

	got, err := catalog.FindByID(context.Background(), "prod_premium")
	require.NoError(t, err)
	assert.Equal(t, "prod_premium", got.ProductID)

	// второй запрос обслуживается из кэша
	got, err = catalog.FindByID(context.Background(), "prod_premium")
	require.NoError(t, err)
	assert.Equal(t, []string{"premium_access"}, got.Entitlements)

	store.AssertExpectations(t)
}

func TestCachedCatalog_FindByID_NotFound(t *testing.T) {
	c := setupTestCache(t)
	store := new(StoreMock)
	catalog := NewCachedCatalog(store, c)

	store.On("FindProduct", mock.Anything, "prod_ghost").Return(nil, models.ErrNotFound)

	_, err := catalog.FindByID(context.Background(), "prod_ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCachedCatalog_UpsertInvalidates(t *testing.T) {
	c := setupTestCache(t)
	store := new(StoreMock)
	catalog := NewCachedCatalog(store, c)

	stale := &models.ProductDefinition{ProductID: "prod_premium", Name: "Old"}
	fresh := &models.ProductDefinition{ProductID: "prod_premium", Name: "New"}

	require.NoError(t, c.Set("product:prod_premium", stale, time.Minute))

	store.On("UpsertProduct", mock.Anything, fresh).Return(nil).Once()
	store.On("FindProduct", mock.Anything, "prod_premium").Return(fresh, nil).Once()

	require.NoError(t, catalog.Upsert(context.Background(), fresh))

	got, err := catalog.FindByID(context.Background(), "prod_premium")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)

	store.AssertExpectations(t)
}
