package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity entity. RewardPoints is a cached projection of the
// user's transaction chain; it is only mutated as a side effect of posting a
// ledger entry, never written directly by checkout logic.
type User struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email           string    `gorm:"type:text;not null;uniqueIndex"`
	Name            string    `gorm:"column:name;not null"`
	Phone           *string   `gorm:"column:phone"`
	ShippingAddress *string   `gorm:"column:shipping_address"`
	RewardPoints    int64     `gorm:"column:reward_points;not null;default:0"`
	IsActive        bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
