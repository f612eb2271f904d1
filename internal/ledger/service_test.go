package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/users"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	usersDDL := `
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
	transactionsDDL := `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_id TEXT,
  kind TEXT NOT NULL,
  category TEXT NOT NULL,
  source TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  points_earned INTEGER NOT NULL DEFAULT 0,
  points_redeemed INTEGER NOT NULL DEFAULT 0,
  balance_after INTEGER NOT NULL,
  description TEXT NOT NULL,
  reference TEXT NOT NULL,
  coupon_id TEXT,
  coupon_code TEXT,
  metadata TEXT,
  created_at DATETIME
);`
	referenceIdx := `
CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_reference ON transactions (reference);`
	couponIdx := `
CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_user_coupon
  ON transactions (user_id, coupon_id) WHERE coupon_id IS NOT NULL;`

	require.NoError(t, db.Exec(usersDDL).Error)
	require.NoError(t, db.Exec(transactionsDDL).Error)
	require.NoError(t, db.Exec(referenceIdx).Error)
	require.NoError(t, db.Exec(couponIdx).Error)
	return db
}

func newTestService(t *testing.T) (Service, users.Repository, *gorm.DB) {
	t.Helper()
	db := setupLedgerTestDB(t)
	userRepo := users.NewRepository(db)
	svc, err := NewService(db, NewRepository(db), userRepo, nil)
	require.NoError(t, err)
	return svc, userRepo, db
}

func mustCreateLedgerUser(t *testing.T, db *gorm.DB, points int64) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("ledger_%s@example.com", uuid.NewString()),
		Name:         "Ledger Tester",
		RewardPoints: points,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestPostUpdatesBalanceAndChain(t *testing.T) {
	svc, userRepo, db := newTestService(t)
	ctx := context.Background()
	user := mustCreateLedgerUser(t, db, 0)

	first, err := svc.Post(ctx, PostInput{
		UserID:       user.ID,
		Kind:         enums.TransactionKindEarn,
		Category:     enums.TransactionCategoryEarning,
		Source:       enums.TransactionSourceCheckout,
		PointsEarned: 90,
		Description:  "earned",
		Reference:    "ref-earn-1",
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(90), first.BalanceAfter)

	second, err := svc.Post(ctx, PostInput{
		UserID:         user.ID,
		Kind:           enums.TransactionKindRedeem,
		Category:       enums.TransactionCategoryRedemption,
		Source:         enums.TransactionSourceCheckout,
		AmountCents:    40,
		PointsRedeemed: 40,
		Description:    "redeemed",
		Reference:      "ref-redeem-1",
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, int64(50), second.BalanceAfter)

	// Cached projection agrees with the latest entry.
	got, err := userRepo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, second.BalanceAfter, got.RewardPoints)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, got.RewardPoints, balance)
}

func TestPostDuplicateReferenceIsNoOp(t *testing.T) {
	svc, userRepo, db := newTestService(t)
	ctx := context.Background()
	user := mustCreateLedgerUser(t, db, 0)

	input := PostInput{
		UserID:       user.ID,
		Kind:         enums.TransactionKindEarn,
		Category:     enums.TransactionCategoryEarning,
		Source:       enums.TransactionSourceCallback,
		PointsEarned: 100,
		Description:  "earned",
		Reference:    "pay:pay_123:earning",
	}

	first, err := svc.Post(ctx, input)
	require.NoError(t, err)
	require.NotNil(t, first)

	replay, err := svc.Post(ctx, input)
	require.NoError(t, err)
	assert.Nil(t, replay)

	got, err := userRepo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.RewardPoints)
}

func TestPostRejectsOverdraw(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	user := mustCreateLedgerUser(t, db, 30)

	_, err := svc.Post(ctx, PostInput{
		UserID:         user.ID,
		Kind:           enums.TransactionKindRedeem,
		Category:       enums.TransactionCategoryRedemption,
		Source:         enums.TransactionSourceCheckout,
		AmountCents:    100,
		PointsRedeemed: 100,
		Description:    "overdraw",
		Reference:      "ref-overdraw",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))

	// Rolled back: balance untouched, no entry written.
	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPostSingleUseCouponUniqueIndex(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	user := mustCreateLedgerUser(t, db, 0)
	couponID := uuid.New()
	code := "ONESHOT"

	_, err := svc.Post(ctx, PostInput{
		UserID:      user.ID,
		Kind:        enums.TransactionKindRedeem,
		Category:    enums.TransactionCategoryPromotion,
		Source:      enums.TransactionSourceCheckout,
		AmountCents: 150,
		Description: "coupon applied",
		Reference:   "cod:order-1:promotion",
		CouponID:    &couponID,
		CouponCode:  &code,
	})
	require.NoError(t, err)

	// Same coupon on a different order for the same user hits the partial
	// unique index rather than the reference pre-check.
	_, err = svc.Post(ctx, PostInput{
		UserID:      user.ID,
		Kind:        enums.TransactionKindRedeem,
		Category:    enums.TransactionCategoryPromotion,
		Source:      enums.TransactionSourceCheckout,
		AmountCents: 150,
		Description: "coupon applied",
		Reference:   "cod:order-2:promotion",
		CouponID:    &couponID,
		CouponCode:  &code,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))
}

func TestHasCouponUse(t *testing.T) {
	svc, _, db := newTestService(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := mustCreateLedgerUser(t, db, 0)
	couponID := uuid.New()
	code := "TRACKED"

	used, err := repo.HasCouponUse(ctx, user.ID, couponID)
	require.NoError(t, err)
	assert.False(t, used)

	_, err = svc.Post(ctx, PostInput{
		UserID:      user.ID,
		Kind:        enums.TransactionKindRedeem,
		Category:    enums.TransactionCategoryPromotion,
		Source:      enums.TransactionSourceCheckout,
		AmountCents: 100,
		Description: "coupon applied",
		Reference:   "cod:order-3:promotion",
		CouponID:    &couponID,
		CouponCode:  &code,
	})
	require.NoError(t, err)

	used, err = repo.HasCouponUse(ctx, user.ID, couponID)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestPostOrderEntriesSequenceAndReplay(t *testing.T) {
	svc, userRepo, db := newTestService(t)
	ctx := context.Background()
	user := mustCreateLedgerUser(t, db, 200)
	couponID := uuid.New()

	order := &models.Order{
		ID:                  uuid.New(),
		OrderNumber:         "ORD-000042-17",
		UserID:              user.ID,
		SubtotalCents:       1000,
		CouponDiscountCents: 150,
		PointsRedeemedCents: 100,
		TotalCents:          800,
		PointsEarned:        75,
		PointsRedeemed:      100,
		Coupon: &models.AppliedCoupon{
			CouponID:      couponID,
			Code:          "SAVE20",
			Type:          enums.CouponTypePercentage,
			ValueCents:    20,
			DiscountCents: 150,
		},
	}

	require.NoError(t, svc.PostOrderEntries(ctx, order, enums.TransactionSourceCallback, "pay", "pay_abc"))

	var entries []models.Transaction
	require.NoError(t, db.Where("user_id = ?", user.ID).Order("created_at ASC, reference ASC").Find(&entries).Error)
	require.Len(t, entries, 4)

	categories := map[enums.TransactionCategory]bool{}
	for _, e := range entries {
		categories[e.Category] = true
	}
	assert.True(t, categories[enums.TransactionCategoryPurchase])
	assert.True(t, categories[enums.TransactionCategoryRedemption])
	assert.True(t, categories[enums.TransactionCategoryEarning])
	assert.True(t, categories[enums.TransactionCategoryPromotion])

	got, err := userRepo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200-100+75), got.RewardPoints)

	// Replaying the whole callback sequence posts nothing new.
	require.NoError(t, svc.PostOrderEntries(ctx, order, enums.TransactionSourceCallback, "pay", "pay_abc"))

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	after, err := userRepo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, got.RewardPoints, after.RewardPoints)
}
