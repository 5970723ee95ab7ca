package repository

import (
	"context"
	"errors"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository is the storage half of the ledger. Balance changes go
// through ApplyDelta, which never runs without a matching transaction insert
// in service.LedgerService.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByID(ctx context.Context, id uint) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.WithContext(ctx).First(&w, id).Error; err != nil {
		return nil, translate("get wallet", "wallet", err)
	}
	return &w, nil
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, translate("get wallet by user", "wallet", err)
	}
	return &w, nil
}

// GetPlatform returns the platform wallet (the single wallet with an admin owner).
func (r *WalletRepository) GetPlatform(ctx context.Context) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.WithContext(ctx).Where("admin_id IS NOT NULL").Order("id ASC").First(&w).Error; err != nil {
		return nil, translate("get platform wallet", "platform wallet", err)
	}
	return &w, nil
}

func (r *WalletRepository) Create(ctx context.Context, w *models.Wallet) error {
	return translate("create wallet", "wallet", r.db.WithContext(ctx).Create(w).Error)
}

// GetOrCreateForUser returns the user's wallet, creating an empty one on first use.
func (r *WalletRepository) GetOrCreateForUser(ctx context.Context, userID uint, currency string) (*models.Wallet, error) {
	w, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	uid := userID
	w = &models.Wallet{UserID: &uid, Balance: decimal.Zero, Currency: currency}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(w).Error; err != nil {
		return nil, translate("create wallet", "wallet", err)
	}
	if w.ID == 0 {
		// lost a creation race
		return r.GetByUserID(ctx, userID)
	}
	return w, nil
}

// LockByIDs locks the given wallets in ascending id order and returns them keyed by id.
func (r *WalletRepository) LockByIDs(ctx context.Context, ids ...uint) (map[uint]*models.Wallet, error) {
	var list []models.Wallet
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).Order("id ASC").Find(&list).Error
	if err != nil {
		return nil, translate("lock wallets", "wallet", err)
	}
	out := make(map[uint]*models.Wallet, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, domain.NotFound("wallet")
		}
	}
	return out, nil
}

// ApplyDelta adds delta to the balance. A negative delta only applies while
// the balance covers it; the bool reports whether the row changed.
func (r *WalletRepository) ApplyDelta(ctx context.Context, walletID uint, delta decimal.Decimal) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", walletID)
	if delta.IsNegative() {
		q = q.Where("balance >= ?", delta.Neg())
	}
	res := q.Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return false, translate("apply wallet delta", "wallet", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// InsertTransaction appends a ledger entry. A reused idempotency key is a ConflictError.
func (r *WalletRepository) InsertTransaction(ctx context.Context, t *models.WalletTransaction) error {
	if t.IdempotencyKey != nil {
		var n int64
		err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
			Where("idempotency_key = ?", *t.IdempotencyKey).Count(&n).Error
		if err != nil {
			return translate("check idempotency key", "wallet transaction", err)
		}
		if n > 0 {
			return domain.Conflict("duplicate wallet transaction")
		}
	}
	return translate("insert wallet transaction", "wallet transaction", r.db.WithContext(ctx).Create(t).Error)
}

func (r *WalletRepository) HasTransactionKey(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("idempotency_key = ?", key).Count(&n).Error
	return n > 0, translate("check idempotency key", "wallet transaction", err)
}

func (r *WalletRepository) ListTransactions(ctx context.Context, walletID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("count wallet transactions", "wallet transaction", err)
	}
	var list []models.WalletTransaction
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	if err != nil {
		return nil, 0, translate("list wallet transactions", "wallet transaction", err)
	}
	return list, total, nil
}

// AllTransactions returns every entry of the wallet in insertion order.
func (r *WalletRepository) AllTransactions(ctx context.Context, walletID uint) ([]models.WalletTransaction, error) {
	var list []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).Order("id ASC").Find(&list).Error
	return list, translate("list wallet transactions", "wallet transaction", err)
}
