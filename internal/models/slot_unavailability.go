package models

import (
	"time"

	"gorm.io/datatypes"
)

// SlotUnavailability holds the blocked start markers of one developer for one day.
type SlotUnavailability struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	DeveloperID uint           `gorm:"not null;uniqueIndex:idx_slot_dev_date,priority:1" json:"developer_id"`
	Date        string         `gorm:"size:10;not null;uniqueIndex:idx_slot_dev_date,priority:2;index" json:"date"` // YYYY-MM-DD
	Slots       datatypes.JSON `json:"slots"`                                                                      // ["14:00","14:30"]
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (SlotUnavailability) TableName() string {
	return "slot_unavailabilities"
}

func (s *SlotUnavailability) Markers() []string {
	return decodeSlots(s.Slots)
}
