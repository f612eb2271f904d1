package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/ledger"
	"github.com/mercaline/storefront-backend/internal/orders"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/gateway"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/metrics"
)

// GatewayAPI is the slice of the gateway client the reconciler needs.
type GatewayAPI interface {
	CreateIntent(ctx context.Context, amountCents int64, currency, receipt string) (*gateway.Intent, error)
	VerifySignature(intentID, paymentID, signature string) bool
}

// CallbackInput is the signed completion callback the gateway posts back.
type CallbackInput struct {
	IntentID  string `json:"intent_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// Service is the payment reconciler: it creates remote intents for pending
// orders and turns verified callbacks into confirmed orders plus ledger
// postings.
type Service interface {
	CreateIntent(ctx context.Context, order *models.Order) (*gateway.Intent, error)
	VerifyCallback(ctx context.Context, input CallbackInput) (*models.Order, error)
}

type service struct {
	gateway GatewayAPI
	orders  orders.Repository
	ledger  ledger.Service
	cfg     config.GatewayConfig
	logger  *logger.Logger
	metrics *metrics.CheckoutMetrics
}

// NewService wires the payment reconciler.
func NewService(
	gatewayAPI GatewayAPI,
	orderRepo orders.Repository,
	ledgerSvc ledger.Service,
	cfg config.GatewayConfig,
	logg *logger.Logger,
	checkoutMetrics *metrics.CheckoutMetrics,
) (Service, error) {
	if gatewayAPI == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		gateway: gatewayAPI,
		orders:  orderRepo,
		ledger:  ledgerSvc,
		cfg:     cfg,
		logger:  logg,
		metrics: checkoutMetrics,
	}, nil
}

// CreateIntent registers a remote intent for the order total and stores the
// correlation id on the order. Gateways reject sub-minimum charges, so the
// amount is clamped up to the configured floor. A gateway failure surfaces as
// GATEWAY_UNAVAILABLE and leaves the order pending; the order itself is
// already durable and the intent can be retried.
func (s *service) CreateIntent(ctx context.Context, order *models.Order) (*gateway.Intent, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.PaymentMethod != enums.PaymentMethodGateway {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not gateway-backed")
	}

	amount := order.TotalCents
	if amount < s.cfg.MinChargeCents {
		amount = s.cfg.MinChargeCents
	}

	currency := string(order.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}

	intent, err := s.gateway.CreateIntent(ctx, amount, currency, order.OrderNumber)
	if err != nil {
		s.logger.Error(s.logger.WithOrderNumber(ctx, order.OrderNumber), "gateway intent creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway unavailable")
	}

	if err := s.orders.SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing payment intent")
	}
	return intent, nil
}

// VerifyCallback authenticates a completion callback and settles the order.
// A signature mismatch leaves the order untouched. The ledger sequence is
// keyed by the gateway payment id, so a replayed callback settles nothing
// twice.
func (s *service) VerifyCallback(ctx context.Context, input CallbackInput) (*models.Order, error) {
	if input.IntentID == "" || input.PaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id, payment id and signature are required")
	}

	if !s.gateway.VerifySignature(input.IntentID, input.PaymentID, input.Signature) {
		s.metrics.IncCallback("invalid_signature")
		ctx = s.logger.WithFields(ctx, map[string]any{"intent_id": input.IntentID, "payment_id": input.PaymentID})
		s.logger.Warn(ctx, "payment callback signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeSignature, "callback signature verification failed")
	}

	order, err := s.orders.FindByPaymentIntentID(ctx, input.IntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment intent")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}

	if order.Status == enums.OrderStatusPending {
		completed := enums.PaymentStatusCompleted
		now := time.Now()
		paymentID := input.PaymentID
		err = s.orders.UpdateStatus(ctx, order.ID, orders.StatusUpdate{
			Status:        enums.OrderStatusConfirmed,
			PaymentStatus: &completed,
			PaymentID:     &paymentID,
			ConfirmedAt:   &now,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming order")
		}
		order.Status = enums.OrderStatusConfirmed
		order.PaymentStatus = completed
		order.PaymentID = &paymentID
		order.ConfirmedAt = &now
	}

	// Past this point the order is settled; a posting failure is an
	// operational inconsistency, not a reason to unwind the confirmation.
	if err := s.ledger.PostOrderEntries(ctx, order, enums.TransactionSourceCallback, "pay", input.PaymentID); err != nil {
		s.metrics.IncPostingFailure()
		wrapped := pkgerrors.Wrap(pkgerrors.CodeInconsistency, err, "ledger postings failed after settlement")
		s.logger.Error(s.logger.WithOrderNumber(ctx, order.OrderNumber), "ledger posting incomplete", wrapped)
	}

	s.metrics.IncCallback("verified")
	return s.orders.FindByID(ctx, order.ID)
}

var _ GatewayAPI = (*gateway.Client)(nil)
