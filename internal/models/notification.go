package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification is the stored copy of a notice shown in the user's inbox.
type Notification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index:idx_notifications_inbox,priority:1" json:"user_id"`
	SenderID  *uint          `json:"sender_id,omitempty"`
	RelatedID *uint          `gorm:"index" json:"related_id,omitempty"` // session the notice is about
	Type      string         `gorm:"size:50;not null" json:"type"`
	Title     string         `gorm:"size:255;not null;default:''" json:"title"`
	Body      string         `gorm:"type:text" json:"body"`
	ReadAt    *time.Time     `gorm:"index:idx_notifications_inbox,priority:2" json:"read_at"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) IsRead() bool { return n.ReadAt != nil }
