package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercaline/storefront-backend/internal/catalog"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
)

// LineInput is one requested cart line. The unit price is never taken from
// the client; the engine resolves it from the catalog at quote time.
type LineInput struct {
	ProductID uuid.UUID `json:"product_id"`
	Qty       int       `json:"qty"`
}

// CouponInput is the already-validated coupon decision fed into a quote.
type CouponInput struct {
	CouponID         uuid.UUID
	Code             string
	Type             enums.CouponType
	Value            int64
	MaxDiscountCents int64
}

// QuoteInput carries everything a deterministic quote needs.
type QuoteInput struct {
	Lines           []LineInput
	Shipping        enums.ShippingMethod
	Coupon          *CouponInput
	RequestedPoints int64
	TaxCents        int64
}

// PricedLine is the immutable per-product snapshot a quote produces.
type PricedLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
	SubtotalCents  int64     `json:"subtotal_cents"`
}

// Breakdown is the full deterministic pricing result. It satisfies
// total == max(0, subtotal + shipping + tax - couponDiscount - pointsRedeemed).
type Breakdown struct {
	Lines []PricedLine `json:"lines"`

	SubtotalCents       int64 `json:"subtotal_cents"`
	CouponDiscountCents int64 `json:"coupon_discount_cents"`
	PointsRedeemedCents int64 `json:"points_redeemed_cents"`
	ShippingCents       int64 `json:"shipping_cents"`
	TaxCents            int64 `json:"tax_cents"`
	TotalCents          int64 `json:"total_cents"`

	PointsEarned int64 `json:"points_earned"`

	Coupon *models.AppliedCoupon `json:"coupon,omitempty"`
}

// Engine computes quotes. It reads the catalog and writes nothing.
type Engine struct {
	catalog     catalog.Repository
	shipping    config.ShippingConfig
	accrualRate decimal.Decimal
}

// NewEngine wires a pricing engine against the catalog.
func NewEngine(catalogRepo catalog.Repository, shipping config.ShippingConfig, rewards config.RewardsConfig) (*Engine, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	rate, err := decimal.NewFromString(rewards.AccrualRate)
	if err != nil {
		return nil, fmt.Errorf("parsing accrual rate %q: %w", rewards.AccrualRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("accrual rate %s out of range", rate)
	}
	return &Engine{
		catalog:     catalogRepo,
		shipping:    shipping,
		accrualRate: rate,
	}, nil
}

// Quote resolves authoritative prices and computes the breakdown. It fails
// the whole quote if any referenced product is missing or unavailable, so a
// partial order can never be priced.
func (e *Engine) Quote(ctx context.Context, input QuoteInput) (*Breakdown, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !input.Shipping.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method").
			WithDetails(map[string]any{"shipping_method": string(input.Shipping)})
	}
	if input.RequestedPoints < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points to redeem must not be negative")
	}
	if input.TaxCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax must not be negative")
	}

	ids := make([]uuid.UUID, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart line missing product id")
		}
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart line quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		ids = append(ids, line.ProductID)
	}

	products, err := e.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading catalog snapshot")
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	var unavailable []uuid.UUID
	lines := make([]PricedLine, 0, len(input.Lines))
	var subtotal int64
	for _, line := range input.Lines {
		product, ok := byID[line.ProductID]
		if !ok || !product.Available {
			unavailable = append(unavailable, line.ProductID)
			continue
		}
		lineSubtotal := product.UnitPriceCents * int64(line.Qty)
		lines = append(lines, PricedLine{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.UnitPriceCents,
			Qty:            line.Qty,
			SubtotalCents:  lineSubtotal,
		})
		subtotal += lineSubtotal
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "one or more items are unavailable").
			WithDetails(map[string]any{"product_ids": unavailable})
	}

	couponDiscount := e.couponDiscount(input.Coupon, subtotal)

	pointsDiscount := input.RequestedPoints
	if ceiling := subtotal - couponDiscount; pointsDiscount > ceiling {
		pointsDiscount = ceiling
	}
	if pointsDiscount < 0 {
		pointsDiscount = 0
	}

	shipping := e.shippingFee(input.Shipping, subtotal)

	total := subtotal + shipping + input.TaxCents - couponDiscount - pointsDiscount
	if total < 0 {
		total = 0
	}

	earnedBase := subtotal - couponDiscount - pointsDiscount
	earned := e.accrualRate.
		Mul(decimal.NewFromInt(earnedBase)).
		Round(0).
		IntPart()

	breakdown := &Breakdown{
		Lines:               lines,
		SubtotalCents:       subtotal,
		CouponDiscountCents: couponDiscount,
		PointsRedeemedCents: pointsDiscount,
		ShippingCents:       shipping,
		TaxCents:            input.TaxCents,
		TotalCents:          total,
		PointsEarned:        earned,
	}
	if input.Coupon != nil {
		breakdown.Coupon = &models.AppliedCoupon{
			CouponID:      input.Coupon.CouponID,
			Code:          input.Coupon.Code,
			Type:          input.Coupon.Type,
			ValueCents:    input.Coupon.Value,
			DiscountCents: couponDiscount,
		}
	}
	return breakdown, nil
}

func (e *Engine) couponDiscount(coupon *CouponInput, subtotal int64) int64 {
	if coupon == nil {
		return 0
	}

	var discount int64
	switch coupon.Type {
	case enums.CouponTypePercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(coupon.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case enums.CouponTypeFixed:
		discount = coupon.Value
	}

	if coupon.MaxDiscountCents > 0 && discount > coupon.MaxDiscountCents {
		discount = coupon.MaxDiscountCents
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func (e *Engine) shippingFee(method enums.ShippingMethod, subtotal int64) int64 {
	if e.shipping.FreeAboveCents > 0 && subtotal >= e.shipping.FreeAboveCents {
		return 0
	}
	switch method {
	case enums.ShippingMethodExpress:
		return e.shipping.ExpressFeeCents
	default:
		return e.shipping.StandardFeeCents
	}
}
