package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/mercaline/storefront-backend/pkg/db/types"
	"github.com/mercaline/storefront-backend/pkg/enums"
)

// Coupon is a discount instrument. Usage is derived from the ledger, not
// stored here: a UsageLimit of 1 is enforced by the unique index on
// transactions(user_id, coupon_id).
type Coupon struct {
	ID    uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code  string           `gorm:"column:code;not null;uniqueIndex"`
	Type  enums.CouponType `gorm:"column:type;type:coupon_type;not null"`
	Value int64            `gorm:"column:value;not null"`

	Scope          enums.CouponScope `gorm:"column:scope;type:coupon_scope;not null;default:'global'"`
	UserID         *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Phone          *string           `gorm:"column:phone"`
	AllowedUserIDs dbtypes.UUIDArray `gorm:"type:uuid[];column:allowed_user_ids;not null;default:ARRAY[]::uuid[]"`

	Active              bool  `gorm:"column:active;not null;default:true"`
	UsageLimit          int   `gorm:"column:usage_limit;not null;default:0"`
	MinOrderAmountCents int64 `gorm:"column:min_order_amount_cents;not null;default:0"`
	MaxDiscountCents    int64 `gorm:"column:max_discount_cents;not null;default:0"`

	ValidFrom  time.Time `gorm:"column:valid_from;not null"`
	ValidUntil time.Time `gorm:"column:valid_until;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
