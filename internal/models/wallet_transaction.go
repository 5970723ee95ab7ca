package models

import (
	"time"

	"mentorbook/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// WalletTransaction is an append-only ledger entry. Amount is the magnitude;
// Type carries the sign.
type WalletTransaction struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	WalletID       uint              `gorm:"not null;index" json:"wallet_id"`
	Amount         decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Type           string            `gorm:"size:10;not null;index" json:"type"` // credit | debit
	Status         string            `gorm:"size:20;not null" json:"status"`
	Description    string            `gorm:"size:255" json:"description"`
	SessionID      *uint             `gorm:"index" json:"session_id,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	IdempotencyKey *string           `gorm:"size:128;uniqueIndex" json:"-"` // e.g. settle:payment:12
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

// Signed returns the amount with credits positive and debits negative.
func (t *WalletTransaction) Signed() decimal.Decimal {
	if t.Type == domain.TxDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
