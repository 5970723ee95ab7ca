package repository

import (
	"context"

	"mentorbook/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeveloperRepository struct {
	db *gorm.DB
}

func NewDeveloperRepository(db *gorm.DB) *DeveloperRepository {
	return &DeveloperRepository{db: db}
}

func (r *DeveloperRepository) Create(ctx context.Context, p *models.DeveloperProfile) error {
	return translate("create developer", "developer", r.db.WithContext(ctx).Create(p).Error)
}

func (r *DeveloperRepository) GetByID(ctx context.Context, id uint) (*models.DeveloperProfile, error) {
	var p models.DeveloperProfile
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate("get developer", "developer", err)
	}
	return &p, nil
}

// GetByIDWithUser preloads the owning user so Owner() is resolved.
func (r *DeveloperRepository) GetByIDWithUser(ctx context.Context, id uint) (*models.DeveloperProfile, error) {
	var p models.DeveloperProfile
	if err := r.db.WithContext(ctx).Preload("User").First(&p, id).Error; err != nil {
		return nil, translate("get developer", "developer", err)
	}
	return &p, nil
}

func (r *DeveloperRepository) GetByUserID(ctx context.Context, userID uint) (*models.DeveloperProfile, error) {
	var p models.DeveloperProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translate("get developer by user", "developer", err)
	}
	return &p, nil
}

// LockByID takes a row lock on the profile for the rest of the transaction.
// Must be called on a repository bound to a tx.
func (r *DeveloperRepository) LockByID(ctx context.Context, id uint) (*models.DeveloperProfile, error) {
	var p models.DeveloperProfile
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	if err != nil {
		return nil, translate("lock developer", "developer", err)
	}
	return &p, nil
}

func (r *DeveloperRepository) SetDefaultSlots(ctx context.Context, id uint, slots []string) error {
	err := r.db.WithContext(ctx).Model(&models.DeveloperProfile{}).Where("id = ?", id).
		Update("default_unavailable_slots", models.EncodeSlots(slots)).Error
	return translate("set default slots", "developer", err)
}
