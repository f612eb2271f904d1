package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entity the pricing engine reads. Checkout never
// writes to it; line items snapshot its price at order time.
type Product struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Available      bool      `gorm:"column:available;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
