package repository

import (
	"context"
	"errors"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateAttempt records a checkout attempt. A gateway session id that is
// already stored is a ConflictError.
func (r *PaymentRepository) CreateAttempt(ctx context.Context, p *models.Payment) error {
	if p.GatewaySessionID == "" {
		return domain.Validation("gateway session id is required")
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("gateway_session_id = ?", p.GatewaySessionID).Count(&n).Error
	if err != nil {
		return translate("check gateway session", "payment", err)
	}
	if n > 0 {
		return domain.Conflict("duplicate gateway session id")
	}
	if p.Status == "" {
		p.Status = domain.PaymentPending
	}
	return translate("create payment", "payment", r.db.WithContext(ctx).Create(p).Error)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate("get payment", "payment", err)
	}
	return &p, nil
}

func (r *PaymentRepository) FindByGatewaySessionID(ctx context.Context, gatewaySessionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("gateway_session_id = ?", gatewaySessionID).First(&p).Error
	if err != nil {
		return nil, translate("find payment by gateway session", "payment", err)
	}
	return &p, nil
}

func (r *PaymentRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).Order("id DESC").First(&p).Error
	if err != nil {
		return nil, translate("find payment by gateway payment", "payment", err)
	}
	return &p, nil
}

// FindActiveBySession returns the pending/processing attempt for a session, or nil.
func (r *PaymentRepository) FindActiveBySession(ctx context.Context, sessionID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status IN ?", sessionID, []string{domain.PaymentPending, domain.PaymentProcessing}).
		Order("id DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("find active payment", "payment", err)
	}
	return &p, nil
}

// FindCompletedBySession returns the settled attempt for a session, or nil.
func (r *PaymentRepository) FindCompletedBySession(ctx context.Context, sessionID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, domain.PaymentCompleted).
		Order("id DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("find completed payment", "payment", err)
	}
	return &p, nil
}

func (r *PaymentRepository) ListBySession(ctx context.Context, sessionID uint) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&list).Error
	return list, translate("list payments", "payment", err)
}

// UpdateStatus sets the status unconditionally. The settlement path uses
// CompareAndSetStatus instead.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate("update payment status", "payment", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("payment")
	}
	return nil
}

// CompareAndSetStatus moves the payment to `to` only while its status is one
// of from. Reports whether this call won the transition.
func (r *PaymentRepository) CompareAndSetStatus(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate("cas payment status", "payment", res.Error)
	}
	return res.RowsAffected == 1, nil
}
