package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/enums"
)

// AppliedCoupon is the coupon snapshot embedded on an order, decoupled from
// the live Coupon row so later edits cannot change historical orders.
type AppliedCoupon struct {
	CouponID      uuid.UUID        `json:"coupon_id"`
	Code          string           `json:"code"`
	Type          enums.CouponType `json:"type"`
	ValueCents    int64            `json:"value_cents"`
	DiscountCents int64            `json:"discount_cents"`
}

// Order is one checkout attempt. Line items and pricing are immutable
// snapshots taken at creation; only Status and the payment block mutate.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	Status   enums.OrderStatus    `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Currency enums.Currency       `gorm:"column:currency;type:text;not null;default:'INR'"`
	Shipping enums.ShippingMethod `gorm:"column:shipping_method;type:text;not null;default:'standard'"`

	SubtotalCents       int64 `gorm:"column:subtotal_cents;not null"`
	CouponDiscountCents int64 `gorm:"column:coupon_discount_cents;not null;default:0"`
	PointsRedeemedCents int64 `gorm:"column:points_redeemed_cents;not null;default:0"`
	ShippingCents       int64 `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents            int64 `gorm:"column:tax_cents;not null;default:0"`
	TotalCents          int64 `gorm:"column:total_cents;not null"`

	Coupon *AppliedCoupon `gorm:"column:coupon;type:jsonb;serializer:json"`

	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentIntentID *string             `gorm:"column:payment_intent_id;index"`
	PaymentID       *string             `gorm:"column:payment_id"`

	PointsEarned   int64 `gorm:"column:points_earned;not null;default:0"`
	PointsRedeemed int64 `gorm:"column:points_redeemed;not null;default:0"`

	ShippingAddress string `gorm:"column:shipping_address;not null"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
