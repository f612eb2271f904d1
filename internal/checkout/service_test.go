package checkout

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/catalog"
	"github.com/mercaline/storefront-backend/internal/coupons"
	"github.com/mercaline/storefront-backend/internal/ledger"
	"github.com/mercaline/storefront-backend/internal/orders"
	"github.com/mercaline/storefront-backend/internal/payments"
	"github.com/mercaline/storefront-backend/internal/pricing"
	"github.com/mercaline/storefront-backend/internal/users"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/gateway"
	"github.com/mercaline/storefront-backend/pkg/logger"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  phone TEXT,
  shipping_address TEXT,
  reward_points INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  available INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL DEFAULT 'INR',
  shipping_method TEXT NOT NULL DEFAULT 'standard',
  subtotal_cents INTEGER NOT NULL,
  coupon_discount_cents INTEGER NOT NULL DEFAULT 0,
  points_redeemed_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  coupon TEXT,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_intent_id TEXT,
  payment_id TEXT,
  points_earned INTEGER NOT NULL DEFAULT 0,
  points_redeemed INTEGER NOT NULL DEFAULT 0,
  shipping_address TEXT NOT NULL,
  confirmed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS transactions (
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
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_reference ON transactions (reference);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_transactions_user_coupon
  ON transactions (user_id, coupon_id) WHERE coupon_id IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS coupons (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  value INTEGER NOT NULL,
  scope TEXT NOT NULL DEFAULT 'global',
  user_id TEXT,
  phone TEXT,
  allowed_user_ids TEXT NOT NULL DEFAULT '{}',
  active INTEGER NOT NULL DEFAULT 1,
  usage_limit INTEGER NOT NULL DEFAULT 0,
  min_order_amount_cents INTEGER NOT NULL DEFAULT 0,
  max_discount_cents INTEGER NOT NULL DEFAULT 0,
  valid_from DATETIME NOT NULL,
  valid_until DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type fakePaymentsService struct {
	intent *gateway.Intent
	err    error
	calls  int
}

func (f *fakePaymentsService) CreateIntent(ctx context.Context, order *models.Order) (*gateway.Intent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

func (f *fakePaymentsService) VerifyCallback(ctx context.Context, input payments.CallbackInput) (*models.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
}

func (n *recordingNotifier) OrderConfirmed(ctx context.Context, user *models.User, order *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.OrderNumber)
}

func (n *recordingNotifier) confirmed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.orders...)
}

type checkoutFixture struct {
	db       *gorm.DB
	svc      Service
	payments *fakePaymentsService
	notifier *recordingNotifier
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	db := setupCheckoutTestDB(t)

	userRepo := users.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)

	engine, err := pricing.NewEngine(
		catalog.NewRepository(db),
		config.ShippingConfig{StandardFeeCents: 50, ExpressFeeCents: 120},
		config.RewardsConfig{AccrualRate: "0.10"},
	)
	require.NoError(t, err)

	ledgerSvc, err := ledger.NewService(db, ledgerRepo, userRepo, nil)
	require.NoError(t, err)

	couponSvc, err := coupons.NewService(coupons.NewRepository(db), ledgerRepo)
	require.NoError(t, err)

	paymentsSvc := &fakePaymentsService{intent: &gateway.Intent{ID: "intent_test_1", Status: "created"}}
	notifier := &recordingNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(orderRepo, userRepo, engine, couponSvc, ledgerSvc, paymentsSvc, notifier, logg, nil)
	require.NoError(t, err)

	return &checkoutFixture{db: db, svc: svc, payments: paymentsSvc, notifier: notifier}
}

func (f *checkoutFixture) mustCreateUser(t *testing.T, points int64, withAddress bool) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("shopper_%s@example.com", uuid.NewString()),
		Name:         "Checkout Tester",
		RewardPoints: points,
		IsActive:     true,
	}
	if withAddress {
		addr := "12 MG Road, Bengaluru 560001"
		user.ShippingAddress = &addr
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *checkoutFixture) mustCreateProduct(t *testing.T, name string, priceCents int64) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:             uuid.New(),
		Name:           name,
		UnitPriceCents: priceCents,
		Available:      true,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *checkoutFixture) mustCreateCoupon(t *testing.T, coupon *models.Coupon) *models.Coupon {
	t.Helper()
	require.NoError(t, f.db.Create(coupon).Error)
	return coupon
}

func (f *checkoutFixture) transactionCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func TestPlaceCODOrderConfirmsAndPostsLedger(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	user := f.mustCreateUser(t, 150, true)
	product := f.mustCreateProduct(t, "Masala Chai Tin", 500)

	result, err := f.svc.PlaceCODOrder(ctx, PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 2}},
		ShippingMethod: enums.ShippingMethodStandard,
		RedeemPoints:   100,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	order := result.Order

	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, order.PaymentStatus)
	assert.NotNil(t, order.ConfirmedAt)
	assert.Regexp(t, `^ORD-\d{6}-\d{5}$`, order.OrderNumber)
	assert.Empty(t, result.IntentID)

	assert.Equal(t, int64(1000), order.SubtotalCents)
	assert.Equal(t, int64(100), order.PointsRedeemedCents)
	assert.Equal(t, int64(50), order.ShippingCents)
	assert.Equal(t, int64(950), order.TotalCents)
	assert.Equal(t, int64(90), order.PointsEarned)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Masala Chai Tin", order.Items[0].Name)

	// purchase, redemption and earning entries; no coupon was applied.
	assert.Equal(t, int64(3), f.transactionCount(t, user.ID))

	var after models.User
	require.NoError(t, f.db.First(&after, "id = ?", user.ID).Error)
	assert.Equal(t, int64(140), after.RewardPoints)

	assert.Equal(t, []string{order.OrderNumber}, f.notifier.confirmed())
	assert.Zero(t, f.payments.calls)
}

func TestPlaceCODOrderWithPercentageCoupon(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	user := f.mustCreateUser(t, 0, true)
	product := f.mustCreateProduct(t, "Steel Tumbler", 1000)
	now := time.Now()
	f.mustCreateCoupon(t, &models.Coupon{
		ID:               uuid.New(),
		Code:             "FESTIVE20",
		Type:             enums.CouponTypePercentage,
		Value:            20,
		Scope:            enums.CouponScopeGlobal,
		Active:           true,
		MaxDiscountCents: 150,
		ValidFrom:        now.Add(-time.Hour),
		ValidUntil:       now.Add(time.Hour),
	})

	result, err := f.svc.PlaceCODOrder(ctx, PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
		CouponCode:     "festive20",
	})
	require.NoError(t, err)
	order := result.Order

	// 20% of 1000 is 200, capped at 150.
	assert.Equal(t, int64(150), order.CouponDiscountCents)
	assert.Equal(t, int64(900), order.TotalCents)
	require.NotNil(t, order.Coupon)
	assert.Equal(t, "FESTIVE20", order.Coupon.Code)

	// purchase, earning and promotion entries.
	assert.Equal(t, int64(3), f.transactionCount(t, user.ID))

	var promo models.Transaction
	require.NoError(t, f.db.Where("user_id = ? AND category = ?", user.ID, enums.TransactionCategoryPromotion).First(&promo).Error)
	require.NotNil(t, promo.CouponCode)
	assert.Equal(t, "FESTIVE20", *promo.CouponCode)
}

func TestPlaceCODOrderRequiresShippingAddress(t *testing.T) {
	f := newCheckoutFixture(t)

	user := f.mustCreateUser(t, 0, false)
	product := f.mustCreateProduct(t, "Masala Chai Tin", 500)

	_, err := f.svc.PlaceCODOrder(context.Background(), PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceCODOrderInsufficientPoints(t *testing.T) {
	f := newCheckoutFixture(t)

	user := f.mustCreateUser(t, 50, true)
	product := f.mustCreateProduct(t, "Masala Chai Tin", 500)

	_, err := f.svc.PlaceCODOrder(context.Background(), PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
		RedeemPoints:   100,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))
	assert.Zero(t, f.transactionCount(t, user.ID))
}

func TestPlaceCODOrderUnknownUser(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.PlaceCODOrder(context.Background(), PlaceOrderInput{
		UserID:         uuid.New(),
		Lines:          []pricing.LineInput{{ProductID: uuid.New(), Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestPlaceGatewayOrderStaysPendingUntilCallback(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	user := f.mustCreateUser(t, 0, true)
	product := f.mustCreateProduct(t, "Steel Tumbler", 1000)

	result, err := f.svc.PlaceGatewayOrder(ctx, PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodExpress,
	})
	require.NoError(t, err)

	assert.Equal(t, "intent_test_1", result.IntentID)
	assert.Equal(t, enums.OrderStatusPending, result.Order.Status)
	assert.Equal(t, enums.PaymentStatusPending, result.Order.PaymentStatus)
	assert.Nil(t, result.Order.ConfirmedAt)
	assert.Equal(t, 1, f.payments.calls)

	// Settlement happens through the callback path, never at placement.
	assert.Zero(t, f.transactionCount(t, user.ID))
	assert.Empty(t, f.notifier.confirmed())
}

func TestPlaceGatewayOrderSurvivesGatewayOutage(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	f.payments.err = pkgerrors.New(pkgerrors.CodeGateway, "payment gateway unavailable")

	user := f.mustCreateUser(t, 0, true)
	product := f.mustCreateProduct(t, "Steel Tumbler", 1000)

	_, err := f.svc.PlaceGatewayOrder(ctx, PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGateway))

	// The order survived the outage and can be retried against the gateway.
	var order models.Order
	require.NoError(t, f.db.Where("user_id = ?", user.ID).First(&order).Error)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Nil(t, order.PaymentIntentID)
}

func TestPlaceCODOrderSingleUseCouponSecondOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	user := f.mustCreateUser(t, 0, true)
	product := f.mustCreateProduct(t, "Masala Chai Tin", 500)
	now := time.Now()
	f.mustCreateCoupon(t, &models.Coupon{
		ID:         uuid.New(),
		Code:       "ONCE",
		Type:       enums.CouponTypeFixed,
		Value:      100,
		Scope:      enums.CouponScopeGlobal,
		Active:     true,
		UsageLimit: 1,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
	})

	first, err := f.svc.PlaceCODOrder(ctx, PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
		CouponCode:     "ONCE",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.Order.CouponDiscountCents)

	_, err = f.svc.PlaceCODOrder(ctx, PlaceOrderInput{
		UserID:         user.ID,
		Lines:          []pricing.LineInput{{ProductID: product.ID, Qty: 1}},
		ShippingMethod: enums.ShippingMethodStandard,
		CouponCode:     "ONCE",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))
}
