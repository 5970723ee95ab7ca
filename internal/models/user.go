package models

import (
	"time"

	"mentorbook/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:120;not null;default:''" json:"name"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;index" json:"role"` // USER | DEVELOPER | ADMIN
	FCMToken     string         `gorm:"size:512" json:"-"`                 // For push notifications
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	DeveloperProfile *DeveloperProfile `gorm:"foreignKey:UserID" json:"developer_profile,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsDeveloper() bool { return u.Role == domain.RoleDeveloper }
func (u *User) IsAdmin() bool     { return u.Role == domain.RoleAdmin }

// DisplayName falls back to the email when no name was set.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
