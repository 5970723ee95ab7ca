package repository

import (
	"context"
	"errors"
	"time"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"

	"gorm.io/gorm"
)

type GatewayEventRepository struct {
	db *gorm.DB
}

func NewGatewayEventRepository(db *gorm.DB) *GatewayEventRepository {
	return &GatewayEventRepository{db: db}
}

// Record stores a delivery, or bumps TryCount when the event id was seen before.
func (r *GatewayEventRepository) Record(ctx context.Context, ev *models.GatewayEvent) (*models.GatewayEvent, error) {
	existing, err := r.GetByEventID(ctx, ev.EventID)
	if err == nil {
		return r.bump(ctx, existing)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if ev.Status == "" {
		ev.Status = domain.GatewayEventReceived
	}
	ev.TryCount = 1
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	err = translate("create gateway event", "gateway event", r.db.WithContext(ctx).Create(ev).Error)
	if errors.Is(err, domain.ErrConflict) {
		// a concurrent delivery of the same event got there first
		existing, err := r.GetByEventID(ctx, ev.EventID)
		if err != nil {
			return nil, err
		}
		return r.bump(ctx, existing)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *GatewayEventRepository) bump(ctx context.Context, ev *models.GatewayEvent) (*models.GatewayEvent, error) {
	err := r.db.WithContext(ctx).Model(ev).UpdateColumn("try_count", gorm.Expr("try_count + 1")).Error
	if err != nil {
		return nil, translate("bump gateway event", "gateway event", err)
	}
	ev.TryCount++
	return ev, nil
}

func (r *GatewayEventRepository) MarkProcessed(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.GatewayEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": domain.GatewayEventProcessed, "processed_at": &now, "error": ""}).Error
}

func (r *GatewayEventRepository) MarkFailed(ctx context.Context, id uint, cause error) error {
	return r.db.WithContext(ctx).Model(&models.GatewayEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": domain.GatewayEventFailed, "error": cause.Error()}).Error
}

func (r *GatewayEventRepository) GetByEventID(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
	var ev models.GatewayEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, translate("get gateway event", "gateway event", err)
	}
	return &ev, nil
}
