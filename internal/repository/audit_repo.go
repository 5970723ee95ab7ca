package repository

import (
	"context"
	"encoding/json"

	"mentorbook/internal/models"

	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log appends an audit entry. meta is stored as JSON.
func (r *AuditRepository) Log(ctx context.Context, userID *uint, action, resource, resourceID string, meta map[string]interface{}) error {
	entry := models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}
	if meta != nil {
		b, _ := json.Marshal(meta)
		entry.Metadata = string(b)
	}
	return translate("write audit log", "audit log", r.db.WithContext(ctx).Create(&entry).Error)
}

func (r *AuditRepository) ListByAction(ctx context.Context, action string) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.WithContext(ctx).Where("action = ?", action).Order("id ASC").Find(&list).Error
	return list, translate("list audit logs", "audit log", err)
}
