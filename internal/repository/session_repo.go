package repository

import (
	"context"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	return translate("create session", "session", r.db.WithContext(ctx).Create(s).Error)
}

func (r *SessionRepository) GetByID(ctx context.Context, id uint) (*models.Session, error) {
	var s models.Session
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate("get session", "session", err)
	}
	return &s, nil
}

func (r *SessionRepository) LockByID(ctx context.Context, id uint) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	if err != nil {
		return nil, translate("lock session", "session", err)
	}
	return &s, nil
}

// ListByDeveloperDate returns the developer's sessions on date whose status is in statuses.
func (r *SessionRepository) ListByDeveloperDate(ctx context.Context, developerID uint, date string, statuses []string) ([]models.Session, error) {
	var list []models.Session
	err := r.db.WithContext(ctx).
		Where("developer_id = ? AND session_date = ? AND status IN ?", developerID, date, statuses).
		Order("start_time ASC").
		Find(&list).Error
	return list, translate("list sessions by day", "session", err)
}

type SessionQuery struct {
	UserID      uint // sessions booked by this user
	DeveloperID uint // or hosted by this developer profile
	Status      string
	Limit       int
	Offset      int
}

// List matches UserID OR DeveloperID when both are set; neither means all sessions.
func (r *SessionRepository) List(ctx context.Context, q SessionQuery) ([]models.Session, int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Session{})
	switch {
	case q.UserID != 0 && q.DeveloperID != 0:
		tx = tx.Where("(user_id = ? OR developer_id = ?)", q.UserID, q.DeveloperID)
	case q.UserID != 0:
		tx = tx.Where("user_id = ?", q.UserID)
	case q.DeveloperID != 0:
		tx = tx.Where("developer_id = ?", q.DeveloperID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	tx = tx.Session(&gorm.Session{})
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, translate("count sessions", "session", err)
	}
	var list []models.Session
	err := tx.Order("start_time DESC").Limit(q.Limit).Offset(q.Offset).Find(&list).Error
	if err != nil {
		return nil, 0, translate("list sessions", "session", err)
	}
	return list, total, nil
}

// TransitionStatus moves the session to `to` only if its current status is one
// of from. fields are written in the same statement. Reports whether the row
// changed.
func (r *SessionRepository) TransitionStatus(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate("transition session", "session", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkTransferred flips the transfer flag of a paid session exactly once.
func (r *SessionRepository) MarkTransferred(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND payment_status = ? AND payment_transfer_status = ?",
			id, domain.SessionPaymentCompleted, domain.TransferPending).
		Update("payment_transfer_status", domain.TransferTransferred)
	if res.Error != nil {
		return false, translate("mark transferred", "session", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteIfStatus physically removes the session when it is still in status.
func (r *SessionRepository) DeleteIfStatus(ctx context.Context, id uint, status string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND status = ?", id, status).Delete(&models.Session{})
	if res.Error != nil {
		return false, translate("delete session", "session", res.Error)
	}
	return res.RowsAffected == 1, nil
}
