package models

import (
	"time"

	"mentorbook/internal/domain"

	"github.com/shopspring/decimal"
)

// Session is a booked unit of mentoring time. Rows are never soft-deleted:
// only pending sessions may be removed, and then physically.
type Session struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	UserID                uint            `gorm:"not null;index" json:"user_id"`
	DeveloperID           uint            `gorm:"not null;index:idx_sessions_dev_date,priority:1" json:"developer_id"`
	SessionDate           string          `gorm:"size:10;not null;index:idx_sessions_dev_date,priority:2" json:"session_date"` // YYYY-MM-DD in booking timezone
	StartTime             time.Time       `gorm:"not null" json:"start_time"`
	Duration              int             `gorm:"not null" json:"duration"` // minutes
	Price                 decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency              string          `gorm:"size:3;default:'USD'" json:"currency"`
	Topic                 string          `gorm:"size:255" json:"topic"`
	Status                string          `gorm:"size:20;not null;index" json:"status"`
	PaymentStatus         string          `gorm:"size:20;not null;default:'pending'" json:"payment_status"`
	PaymentTransferStatus string          `gorm:"size:20;not null;default:'pending'" json:"payment_transfer_status"`
	RejectionReason       *string         `gorm:"type:text" json:"rejection_reason,omitempty"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`

	User      *User             `gorm:"foreignKey:UserID" json:"-"`
	Developer *DeveloperProfile `gorm:"foreignKey:DeveloperID" json:"-"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.Duration) * time.Minute)
}

// Overlaps reports whether [start, end) intersects this session's interval.
// Touching endpoints do not overlap.
func (s *Session) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime().After(start)
}

func (s *Session) IsPaid() bool { return s.PaymentStatus == domain.SessionPaymentCompleted }

func (s *Session) IsTransferred() bool {
	return s.PaymentTransferStatus == domain.TransferTransferred
}

