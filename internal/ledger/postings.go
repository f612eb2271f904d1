package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
)

// OrderPostingKey builds the stable idempotency reference for one posting of
// an order sequence. COD checkouts key on the order id, gateway callbacks on
// the gateway payment id, so a replayed request or callback maps onto the
// same references.
func OrderPostingKey(prefix, correlationID string, category enums.TransactionCategory) string {
	return fmt.Sprintf("%s:%s:%s", prefix, correlationID, category)
}

// PostOrderEntries writes the ledger sequence for a settled order, in a fixed
/// order: purchase, redemption, earning, promotion. Entries are posted one at
// a time so a reader always observes a valid prefix of the sequence. Each
// posting is individually idempotent; failures are collected rather than
// aborting the sequence, and the caller decides how to surface them.
func (s *service) PostOrderEntries(ctx context.Context, order *models.Order, source enums.TransactionSource, prefix, correlationID string) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if correlationID == "" {
		return fmt.Errorf("correlation id is required")
	}

	metadata, _ := json.Marshal(map[string]string{
		"order_number": order.OrderNumber,
		"source":       string(source),
	})

	var errs error

	_, err := s.Post(ctx, PostInput{
		UserID:      order.UserID,
		OrderID:     &order.ID,
		Kind:        enums.TransactionKindPurchase,
		Category:    enums.TransactionCategoryPurchase,
		Source:      source,
		AmountCents: order.TotalCents,
		Description: fmt.Sprintf("Order %s placed", order.OrderNumber),
		Reference:   OrderPostingKey(prefix, correlationID, enums.TransactionCategoryPurchase),
		Metadata:    metadata,
	})
	errs = multierr.Append(errs, err)

	if order.PointsRedeemed > 0 {
		_, err := s.Post(ctx, PostInput{
			UserID:         order.UserID,
			OrderID:        &order.ID,
			Kind:           enums.TransactionKindRedeem,
			Category:       enums.TransactionCategoryRedemption,
			Source:         source,
			AmountCents:    order.PointsRedeemedCents,
			PointsRedeemed: order.PointsRedeemed,
			Description:    fmt.Sprintf("Points redeemed on order %s", order.OrderNumber),
			Reference:      OrderPostingKey(prefix, correlationID, enums.TransactionCategoryRedemption),
			Metadata:       metadata,
		})
		errs = multierr.Append(errs, err)
	}

	if order.PointsEarned > 0 {
		_, err := s.Post(ctx, PostInput{
			UserID:       order.UserID,
			OrderID:      &order.ID,
			Kind:         enums.TransactionKindEarn,
			Category:     enums.TransactionCategoryEarning,
			Source:       source,
			AmountCents:  0,
			PointsEarned: order.PointsEarned,
			Description:  fmt.Sprintf("Points earned on order %s", order.OrderNumber),
			Reference:    OrderPostingKey(prefix, correlationID, enums.TransactionCategoryEarning),
			Metadata:     metadata,
		})
		errs = multierr.Append(errs, err)
	}

	if order.Coupon != nil && order.CouponDiscountCents > 0 {
		couponID := order.Coupon.CouponID
		couponCode := order.Coupon.Code
		_, err := s.Post(ctx, PostInput{
			UserID:      order.UserID,
			OrderID:     &order.ID,
			Kind:        enums.TransactionKindRedeem,
			Category:    enums.TransactionCategoryPromotion,
			Source:      source,
			AmountCents: order.CouponDiscountCents,
			Description: fmt.Sprintf("Coupon %s applied on order %s", couponCode, order.OrderNumber),
			Reference:   OrderPostingKey(prefix, correlationID, enums.TransactionCategoryPromotion),
			CouponID:    &couponID,
			CouponCode:  &couponCode,
			Metadata:    metadata,
		})
		errs = multierr.Append(errs, err)
	}

	return errs
}
