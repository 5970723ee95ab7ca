package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeveloperProfile is the bookable side of a developer account. Session.DeveloperID
// points here, not at the owning user.
type DeveloperProfile struct {
	ID                      uint            `gorm:"primaryKey" json:"id"`
	UserID                  uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Title                   string          `gorm:"size:150" json:"title"`
	HourlyRate              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"hourly_rate"`
	Currency                string          `gorm:"size:3;default:'USD'" json:"currency"`
	DefaultUnavailableSlots datatypes.JSON  `json:"default_unavailable_slots"` // ["09:00","12:30"]
	IsApproved              bool            `gorm:"default:false;index" json:"is_approved"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	DeletedAt               gorm.DeletedAt  `gorm:"index" json:"-"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (DeveloperProfile) TableName() string {
	return "developer_profiles"
}

// DefaultSlots decodes DefaultUnavailableSlots; a malformed column reads as empty.
func (p *DeveloperProfile) DefaultSlots() []string {
	return decodeSlots(p.DefaultUnavailableSlots)
}

// Owner returns the owning user, resolved when User was preloaded.
func (p *DeveloperProfile) Owner() DeveloperRef {
	if p.User != nil && p.User.ID != 0 {
		return ResolvedDeveloperRef(p.User)
	}
	return DeveloperRefByID(p.UserID)
}

type refKind uint8

const (
	refByID refKind = iota + 1
	refResolved
)

// DeveloperRef points at the user owning a developer profile, either by id or
// as an already loaded record. Callers needing the full user resolve it
// explicitly (see service.IdentityService.ResolveOwner).
type DeveloperRef struct {
	kind refKind
	id   uint
	user *User
}

func DeveloperRefByID(userID uint) DeveloperRef {
	return DeveloperRef{kind: refByID, id: userID}
}

func ResolvedDeveloperRef(u *User) DeveloperRef {
	return DeveloperRef{kind: refResolved, id: u.ID, user: u}
}

func (r DeveloperRef) UserID() uint { return r.id }

// Resolved returns the loaded user, if this ref carries one.
func (r DeveloperRef) Resolved() (*User, bool) {
	if r.kind == refResolved {
		return r.user, true
	}
	return nil, false
}

func (r DeveloperRef) IsZero() bool { return r.kind == 0 }

func decodeSlots(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// EncodeSlots is the inverse of decodeSlots.
func EncodeSlots(slots []string) datatypes.JSON {
	if slots == nil {
		slots = []string{}
	}
	b, _ := json.Marshal(slots)
	return datatypes.JSON(b)
}
