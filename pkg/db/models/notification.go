package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a row in the user-facing notification feed. Rows are
// written by the notification worker, never by request handlers.
type Notification struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid"`
	Kind      string     `gorm:"column:kind;not null"`
	Title     string     `gorm:"column:title;not null"`
	Body      string     `gorm:"column:body;not null"`
	Read      bool       `gorm:"column:read;not null;default:false"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
