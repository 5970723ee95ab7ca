package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrWalletOwner = errors.New("wallet must have exactly one owner")

// Wallet belongs to either a user/developer (UserID) or the platform (AdminID).
// Balance is only ever changed through service.LedgerService.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    *uint           `gorm:"uniqueIndex" json:"user_id,omitempty"`
	AdminID   *uint           `gorm:"uniqueIndex" json:"admin_id,omitempty"`
	Balance   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	Currency  string          `gorm:"size:3;default:'USD'" json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if (w.UserID == nil) == (w.AdminID == nil) {
		return ErrWalletOwner
	}
	return nil
}

func (w *Wallet) IsPlatform() bool { return w.AdminID != nil }
