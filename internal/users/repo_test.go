package users

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

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  phone TEXT,
  shipping_address TEXT,
  reward_points INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(users).Error)
	return db
}

func mustCreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Email:    fmt.Sprintf("sf_test_%s@example.com", uuid.NewString()),
		Name:     "Repo Tester",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestRepositoryAdjustRewardPoints(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user := mustCreateTestUser(t, db)

	require.NoError(t, repo.AdjustRewardPoints(ctx, user.ID, 150))
	require.NoError(t, repo.AdjustRewardPoints(ctx, user.ID, -40))

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(110), got.RewardPoints)
}

func TestRepositoryAdjustRewardPointsRepeated(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user := mustCreateTestUser(t, db)

	for i := 0; i < 20; i++ {
		require.NoError(t, repo.AdjustRewardPoints(ctx, user.ID, 5))
	}

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.RewardPoints)
}

func TestRepositoryUpdateShippingAddress(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user := mustCreateTestUser(t, db)
	require.NoError(t, repo.UpdateShippingAddress(ctx, user.ID, "12 MG Road, Bengaluru 560001"))

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ShippingAddress)
	assert.Equal(t, "12 MG Road, Bengaluru 560001", *got.ShippingAddress)
}
