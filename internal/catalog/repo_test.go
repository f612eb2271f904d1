package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/db/models"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  available INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(products).Error)
	return db
}

func mustCreateTestProduct(t *testing.T, db *gorm.DB, name string, priceCents int64, available bool) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:             uuid.New(),
		Name:           name,
		UnitPriceCents: priceCents,
		Available:      available,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestRepositoryGetByIDs(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := mustCreateTestProduct(t, db, "Masala Chai Tin", 24900, true)
	second := mustCreateTestProduct(t, db, "Steel Tumbler", 64900, false)
	mustCreateTestProduct(t, db, "Unrelated", 100, true)

	products, err := repo.GetByIDs(ctx, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, products, 2)

	byID := map[uuid.UUID]models.Product{}
	for _, p := range products {
		byID[p.ID] = p
	}
	assert.Equal(t, int64(24900), byID[first.ID].UnitPriceCents)
	assert.False(t, byID[second.ID].Available)
}

func TestRepositoryGetByIDsEmptyInput(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)

	products, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestRepositoryListAvailable(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	mustCreateTestProduct(t, db, "Visible", 1000, true)
	mustCreateTestProduct(t, db, "Hidden", 2000, false)

	products, err := repo.ListAvailable(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Visible", products[0].Name)
}
