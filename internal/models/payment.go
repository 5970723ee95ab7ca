package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment is one checkout attempt for a session. GatewaySessionID is the
// idempotency key for webhook replays.
type Payment struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	SessionID        uint              `gorm:"not null;index" json:"session_id"`
	UserID           uint              `gorm:"not null;index" json:"user_id"`
	Amount           decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency         string            `gorm:"size:3;default:'USD'" json:"currency"`
	Status           string            `gorm:"size:20;not null;index" json:"status"` // pending, processing, completed, failed, refunded
	GatewayPaymentID string            `gorm:"size:255;index" json:"gateway_payment_id"`
	GatewaySessionID string            `gorm:"size:255;uniqueIndex;not null" json:"gateway_session_id"`
	CheckoutURL      string            `gorm:"size:1024" json:"checkout_url"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	CompletedAt      *time.Time        `json:"completed_at"`
	RefundedAt       *time.Time        `json:"refunded_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	DeletedAt        gorm.DeletedAt    `gorm:"index" json:"-"`

	Session *Session `gorm:"foreignKey:SessionID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// GatewayEvent records every verified webhook delivery for diagnosis and replay.
type GatewayEvent struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	EventID          string         `gorm:"size:255;uniqueIndex;not null" json:"event_id"`
	Type             string         `gorm:"size:100;not null;index" json:"type"`
	GatewaySessionID string         `gorm:"size:255;index" json:"gateway_session_id"`
	Payload          datatypes.JSON `json:"payload"`
	Status           string         `gorm:"size:20;not null;default:'received';index" json:"status"`
	Error            string         `gorm:"type:text" json:"error"`
	TryCount         int            `gorm:"not null;default:0" json:"try_count"`
	ReceivedAt       time.Time      `json:"received_at"`
	ProcessedAt      *time.Time     `json:"processed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (GatewayEvent) TableName() string {
	return "payment_gateway_events"
}
