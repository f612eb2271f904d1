package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/enums"
)

// Transaction is one append-only ledger entry. BalanceAfter is computed at
// write time from the owner's balance immediately before this entry and is
// never recomputed, so the chain is verifiable point in time by point in time.
//
// Reference is the idempotency key: unique across the table, derived from
// (order id, category) for checkout postings and from the gateway payment id
// for callback postings. CouponID participates in the partial unique index
// that enforces single-use coupons atomically.
type Transaction struct {
	ID      uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID  uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID *uuid.UUID `gorm:"column:order_id;type:uuid;index"`

	Kind     enums.TransactionKind     `gorm:"column:kind;type:transaction_kind;not null"`
	Category enums.TransactionCategory `gorm:"column:category;type:transaction_category;not null"`
	Source   enums.TransactionSource   `gorm:"column:source;type:transaction_source;not null"`

	AmountCents int64 `gorm:"column:amount_cents;not null"`

	PointsEarned   int64 `gorm:"column:points_earned;not null;default:0"`
	PointsRedeemed int64 `gorm:"column:points_redeemed;not null;default:0"`
	BalanceAfter   int64 `gorm:"column:balance_after;not null"`

	Description string `gorm:"column:description;not null"`
	Reference   string `gorm:"column:reference;not null;uniqueIndex"`

	CouponID   *uuid.UUID      `gorm:"column:coupon_id;type:uuid"`
	CouponCode *string         `gorm:"column:coupon_code"`
	Metadata   json.RawMessage `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
