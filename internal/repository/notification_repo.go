package repository

import (
	"context"
	"time"

	"mentorbook/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return translate("create notification", "notification", r.db.WithContext(ctx).Create(n).Error)
}

func (r *NotificationRepository) ListByUserID(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, translate("list notifications", "notification", err)
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND read_at IS NULL", userID).Count(&n).Error
	return n, translate("count notifications", "notification", err)
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uint) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).Update("read_at", &now)
	return translate("mark notification read", "notification", res.Error)
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Update("read_at", &now).Error
	return translate("mark notifications read", "notification", err)
}
