package repository

import (
	"context"
	"errors"

	"mentorbook/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Get returns the day record, or nil when the developer has none for date.
func (r *SlotRepository) Get(ctx context.Context, developerID uint, date string) (*models.SlotUnavailability, error) {
	var rec models.SlotUnavailability
	err := r.db.WithContext(ctx).Where("developer_id = ? AND date = ?", developerID, date).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("get unavailability", "unavailability", err)
	}
	return &rec, nil
}

func (r *SlotRepository) Upsert(ctx context.Context, developerID uint, date string, slots []string) error {
	rec := models.SlotUnavailability{
		DeveloperID: developerID,
		Date:        date,
		Slots:       models.EncodeSlots(slots),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "developer_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"slots", "updated_at"}),
	}).Create(&rec).Error
	return translate("upsert unavailability", "unavailability", err)
}

// DeleteBefore prunes day records strictly older than date.
func (r *SlotRepository) DeleteBefore(ctx context.Context, date string) (int64, error) {
	res := r.db.WithContext(ctx).Where("date < ?", date).Delete(&models.SlotUnavailability{})
	return res.RowsAffected, translate("prune unavailability", "unavailability", res.Error)
}
