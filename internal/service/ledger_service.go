package service

import (
	"context"
	"errors"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerEntry describes the transaction record paired with a balance change.
type LedgerEntry struct {
	Description    string
	SessionID      *uint
	Metadata       map[string]interface{}
	IdempotencyKey string // empty means no replay protection
}

// Reconciliation compares a wallet's stored balance with its transaction history.
type Reconciliation struct {
	WalletID     uint            `json:"wallet_id"`
	Balance      decimal.Decimal `json:"balance"`
	LedgerSum    decimal.Decimal `json:"ledger_sum"`
	Transactions int             `json:"transactions"`
	Balanced     bool            `json:"balanced"`
}

// LedgerService is the only writer of wallet balances. Every balance change
// it makes is paired with exactly one WalletTransaction in the same DB
// transaction.
type LedgerService struct {
	db       *gorm.DB
	currency string
	log      *zap.Logger
}

func NewLedgerService(db *gorm.DB, currency string, log *zap.Logger) *LedgerService {
	if currency == "" {
		currency = "USD"
	}
	return &LedgerService{db: db, currency: currency, log: log.Named("ledger")}
}

// within runs fn on tx, or on a new transaction when tx is nil.
func (s *LedgerService) within(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *LedgerService) Credit(ctx context.Context, tx *gorm.DB, walletID uint, amount decimal.Decimal, e LedgerEntry) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, walletID, amount, domain.TxCredit, e)
}

// Debit fails with InsufficientFundsError when the balance does not cover amount.
func (s *LedgerService) Debit(ctx context.Context, tx *gorm.DB, walletID uint, amount decimal.Decimal, e LedgerEntry) (*models.WalletTransaction, error) {
	return s.apply(ctx, tx, walletID, amount, domain.TxDebit, e)
}

func (s *LedgerService) apply(ctx context.Context, tx *gorm.DB, walletID uint, amount decimal.Decimal, kind string, e LedgerEntry) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, domain.Validation("amount must be positive")
	}
	amount = amount.Round(2)
	var out *models.WalletTransaction
	err := s.within(ctx, tx, func(tx *gorm.DB) error {
		wallets := repository.NewWalletRepository(tx)
		delta := amount
		if kind == domain.TxDebit {
			delta = amount.Neg()
		}
		ok, err := wallets.ApplyDelta(ctx, walletID, delta)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := wallets.GetByID(ctx, walletID); err != nil {
				return err
			}
			return domain.InsufficientFunds("insufficient wallet balance")
		}
		t := &models.WalletTransaction{
			WalletID:    walletID,
			Amount:      amount,
			Type:        kind,
			Status:      domain.TxStatusCompleted,
			Description: e.Description,
			SessionID:   e.SessionID,
			Metadata:    e.Metadata,
		}
		if e.IdempotencyKey != "" {
			key := e.IdempotencyKey
			t.IdempotencyKey = &key
		}
		if err := wallets.InsertTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer moves amount between two wallets. Both rows are locked in id order
// before either is touched.
func (s *LedgerService) Transfer(ctx context.Context, tx *gorm.DB, fromID, toID uint, amount decimal.Decimal, debit, credit LedgerEntry) error {
	if fromID == toID {
		return domain.Validation("cannot transfer to the same wallet")
	}
	return s.within(ctx, tx, func(tx *gorm.DB) error {
		if _, err := repository.NewWalletRepository(tx).LockByIDs(ctx, fromID, toID); err != nil {
			return err
		}
		if _, err := s.Debit(ctx, tx, fromID, amount, debit); err != nil {
			return err
		}
		_, err := s.Credit(ctx, tx, toID, amount, credit)
		return err
	})
}

// Applied reports whether an entry with key has already been written.
func (s *LedgerService) Applied(ctx context.Context, tx *gorm.DB, key string) (bool, error) {
	db := tx
	if db == nil {
		db = s.db
	}
	return repository.NewWalletRepository(db).HasTransactionKey(ctx, key)
}

func (s *LedgerService) Reconcile(ctx context.Context, walletID uint) (*Reconciliation, error) {
	wallets := repository.NewWalletRepository(s.db)
	w, err := wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	txs, err := wallets.AllTransactions(ctx, walletID)
	if err != nil {
		return nil, err
	}
	sum := decimal.Zero
	for i := range txs {
		sum = sum.Add(txs[i].Signed())
	}
	rec := &Reconciliation{
		WalletID:     w.ID,
		Balance:      w.Balance,
		LedgerSum:    sum,
		Transactions: len(txs),
		Balanced:     w.Balance.Equal(sum),
	}
	if !rec.Balanced {
		s.log.Error("wallet out of balance",
			zap.Uint("wallet_id", w.ID),
			zap.String("balance", w.Balance.String()),
			zap.String("ledger_sum", sum.String()))
	}
	return rec, nil
}

func (s *LedgerService) PlatformWallet(ctx context.Context) (*models.Wallet, error) {
	return repository.NewWalletRepository(s.db).GetPlatform(ctx)
}

// WalletForUser returns the user's wallet, creating it on first use.
func (s *LedgerService) WalletForUser(ctx context.Context, userID uint) (*models.Wallet, error) {
	return repository.NewWalletRepository(s.db).GetOrCreateForUser(ctx, userID, s.currency)
}

func (s *LedgerService) Wallet(ctx context.Context, walletID uint) (*models.Wallet, error) {
	return repository.NewWalletRepository(s.db).GetByID(ctx, walletID)
}

// Transactions pages through a wallet's history, newest first.
func (s *LedgerService) Transactions(ctx context.Context, walletID uint, page, limit int) ([]models.WalletTransaction, int64, error) {
	if err := validatePage(page, limit); err != nil {
		return nil, 0, err
	}
	return repository.NewWalletRepository(s.db).ListTransactions(ctx, walletID, limit, (page-1)*limit)
}

func validatePage(page, limit int) error {
	if page < 1 {
		return domain.Validation("page must be >= 1")
	}
	if limit < 1 || limit > 100 {
		return domain.Validation("limit must be between 1 and 100")
	}
	return nil
}

// isConflict reports duplicate-key style failures.
func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
