package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/coupons"
	"github.com/mercaline/storefront-backend/internal/ledger"
	"github.com/mercaline/storefront-backend/internal/orders"
	"github.com/mercaline/storefront-backend/internal/payments"
	"github.com/mercaline/storefront-backend/internal/pricing"
	"github.com/mercaline/storefront-backend/internal/users"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/metrics"
)

const orderNumberRetries = 3

// Notifier delivers order confirmations. Implementations must be best-effort
// and must never block the checkout request on delivery.
type Notifier interface {
	OrderConfirmed(ctx context.Context, user *models.User, order *models.Order)
}

// PlaceOrderInput is the client-facing checkout request after decoding.
type PlaceOrderInput struct {
	UserID         uuid.UUID
	Lines          []pricing.LineInput
	ShippingMethod enums.ShippingMethod
	CouponCode     string
	RedeemPoints   int64
	TaxCents       int64
	Currency       string
}

// Result is what a completed checkout returns. IntentID is set only on the
// gateway path.
type Result struct {
	Order    *models.Order `json:"order"`
	IntentID string        `json:"intent_id,omitempty"`
}

// Service is the order orchestrator. Both entry points share the same
// validation and pricing path; they differ in initial state and in when the
// ledger sequence runs.
type Service interface {
	PlaceCODOrder(ctx context.Context, input PlaceOrderInput) (*Result, error)
	PlaceGatewayOrder(ctx context.Context, input PlaceOrderInput) (*Result, error)
}

type service struct {
	orders   orders.Repository
	users    users.Repository
	pricing  *pricing.Engine
	coupons  coupons.Service
	ledger   ledger.Service
	payments payments.Service
	notifier Notifier
	logger   *logger.Logger
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

// NewService wires the order orchestrator. The notifier may be nil.
func NewService(
	orderRepo orders.Repository,
	userRepo users.Repository,
	pricingEngine *pricing.Engine,
	couponSvc coupons.Service,
	ledgerSvc ledger.Service,
	paymentSvc payments.Service,
	notifier Notifier,
	logg *logger.Logger,
	checkoutMetrics *metrics.CheckoutMetrics,
) (Service, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if pricingEngine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupons service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if paymentSvc == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		orders:   orderRepo,
		users:    userRepo,
		pricing:  pricingEngine,
		coupons:  couponSvc,
		ledger:   ledgerSvc,
		payments: paymentSvc,
		notifier: notifier,
		logger:   logg,
		metrics:  checkoutMetrics,
		now:      time.Now,
	}, nil
}

// PlaceCODOrder runs the synchronous path: the order is trusted at placement,
// persisted already confirmed, and the ledger sequence runs immediately.
func (s *service) PlaceCODOrder(ctx context.Context, input PlaceOrderInput) (*Result, error) {
	started := s.now()

	user, order, err := s.prepareOrder(ctx, input, enums.PaymentMethodCOD)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order.Status = enums.OrderStatusConfirmed
	order.PaymentStatus = enums.PaymentStatusCompleted
	order.ConfirmedAt = &now

	if err := s.persistOrder(ctx, order); err != nil {
		return nil, err
	}

	// The order is committed. Posting failures are logged and surfaced to
	// operators, never unwound onto the customer.
	if err := s.ledger.PostOrderEntries(ctx, order, enums.TransactionSourceCheckout, "cod", order.ID.String()); err != nil {
		s.metrics.IncPostingFailure()
		wrapped := pkgerrors.Wrap(pkgerrors.CodeInconsistency, err, "ledger postings failed after order commit")
		s.logger.Error(s.logger.WithOrderNumber(ctx, order.OrderNumber), "ledger posting incomplete", wrapped)
	}

	s.notifyConfirmed(ctx, user, order)

	s.metrics.IncOrderPlaced(string(enums.PaymentMethodCOD))
	s.metrics.ObserveCheckoutDuration(string(enums.PaymentMethodCOD), s.now().Sub(started))

	placed, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return &Result{Order: order}, nil
	}
	return &Result{Order: placed}, nil
}

// PlaceGatewayOrder runs the two-phase path: the order is persisted pending,
// the remote intent is created, and settlement happens later through the
// payment callback. No ledger entries are posted here.
func (s *service) PlaceGatewayOrder(ctx context.Context, input PlaceOrderInput) (*Result, error) {
	started := s.now()

	_, order, err := s.prepareOrder(ctx, input, enums.PaymentMethodGateway)
	if err != nil {
		return nil, err
	}

	order.Status = enums.OrderStatusPending
	order.PaymentStatus = enums.PaymentStatusPending

	if err := s.persistOrder(ctx, order); err != nil {
		return nil, err
	}

	intent, err := s.payments.CreateIntent(ctx, order)
	if err != nil {
		// The order is durable and stays pending; the intent can be
		// retried without re-placing it.
		return nil, err
	}

	s.metrics.IncOrderPlaced(string(enums.PaymentMethodGateway))
	s.metrics.ObserveCheckoutDuration(string(enums.PaymentMethodGateway), s.now().Sub(started))

	placed, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		placed = order
	}
	return &Result{Order: placed, IntentID: intent.ID}, nil
}

// prepareOrder runs everything shared by both entry points up to (but not
// including) persistence: validation, coupon evaluation and pricing. No
// writes happen here, so any failure leaves no partial order behind.
func (s *service) prepareOrder(ctx context.Context, input PlaceOrderInput, method enums.PaymentMethod) (*models.User, *models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if len(input.Lines) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
	}
	if user.ShippingAddress == nil || *user.ShippingAddress == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "a shipping address must be on file before checkout")
	}
	if input.RedeemPoints > 0 && input.RedeemPoints > user.RewardPoints {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotEligible, "insufficient reward points").
			WithDetails(map[string]any{"available_points": user.RewardPoints})
	}

	quote := pricing.QuoteInput{
		Lines:           input.Lines,
		Shipping:        input.ShippingMethod,
		RequestedPoints: input.RedeemPoints,
		TaxCents:        input.TaxCents,
	}
	breakdown, err := s.pricing.Quote(ctx, quote)
	if err != nil {
		return nil, nil, err
	}

	if input.CouponCode != "" {
		// Re-validated at commit time against the authoritative subtotal,
		// even if the client listed or applied the coupon earlier;
		// decisions are never cached across requests.
		decision, err := s.coupons.Apply(ctx, coupons.Identity{UserID: user.ID, Phone: user.Phone}, input.CouponCode, breakdown.SubtotalCents)
		if err != nil {
			return nil, nil, err
		}
		quote.Coupon = &pricing.CouponInput{
			CouponID:         decision.CouponID,
			Code:             decision.Code,
			Type:             decision.Type,
			Value:            decision.Value,
			MaxDiscountCents: decision.MaxDiscountCents,
		}
		breakdown, err = s.pricing.Quote(ctx, quote)
		if err != nil {
			return nil, nil, err
		}
	}

	items := make([]models.OrderLineItem, 0, len(breakdown.Lines))
	for _, line := range breakdown.Lines {
		items = append(items, models.OrderLineItem{
			ID:             uuid.New(),
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
			SubtotalCents:  line.SubtotalCents,
		})
	}

	order := &models.Order{
		ID:                  uuid.New(),
		UserID:              user.ID,
		Currency:            enums.NormalizeCurrency(input.Currency),
		Shipping:            input.ShippingMethod,
		SubtotalCents:       breakdown.SubtotalCents,
		CouponDiscountCents: breakdown.CouponDiscountCents,
		PointsRedeemedCents: breakdown.PointsRedeemedCents,
		ShippingCents:       breakdown.ShippingCents,
		TaxCents:            breakdown.TaxCents,
		TotalCents:          breakdown.TotalCents,
		Coupon:              breakdown.Coupon,
		PaymentMethod:       method,
		PointsEarned:        breakdown.PointsEarned,
		PointsRedeemed:      breakdown.PointsRedeemedCents,
		ShippingAddress:     *user.ShippingAddress,
		Items:               items,
	}
	return user, order, nil
}

// persistOrder assigns an order number and creates the row, retrying with a
// bumped count when the number collides with a concurrent checkout.
func (s *service) persistOrder(ctx context.Context, order *models.Order) error {
	count, err := s.orders.Count(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting orders")
	}

	for attempt := 0; attempt < orderNumberRetries; attempt++ {
		order.OrderNumber = orders.NumberFor(count+int64(attempt), s.now())
		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "order_number") {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocating order number")
}

func (s *service) notifyConfirmed(ctx context.Context, user *models.User, order *models.Order) {
	if s.notifier == nil {
		return
	}
	// Detached from the request context so a slow or failing notification
	// cannot affect the committed order.
	s.notifier.OrderConfirmed(context.WithoutCancel(ctx), user, order)
}
