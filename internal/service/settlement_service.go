package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mentorbook/config"
	"mentorbook/internal/domain"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"
	"mentorbook/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CheckoutURLs struct {
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	Payment *models.Payment `json:"payment"`
	URL     string          `json:"checkout_url"`
	Reused  bool            `json:"reused"`
}

type TransferResult struct {
	SessionID         uint            `json:"session_id"`
	Amount            decimal.Decimal `json:"amount"`
	PlatformWalletID  uint            `json:"platform_wallet_id"`
	DeveloperWalletID uint            `json:"developer_wallet_id"`
}

// SettlementService ties gateway events to session state and the ledger.
// Every money movement it makes is guarded twice: a compare-and-swap on the
// record's status and a unique ledger idempotency key.
type SettlementService struct {
	db       *gorm.DB
	gateway  payment.Gateway
	ledger   *LedgerService
	notifier Notifier
	cfg      config.PaymentConfig
	locks    *keyedMutex
	now      func() time.Time
	log      *zap.Logger
}

func NewSettlementService(db *gorm.DB, gateway payment.Gateway, ledger *LedgerService, notifier Notifier, cfg config.PaymentConfig, log *zap.Logger) *SettlementService {
	return &SettlementService{
		db:       db,
		gateway:  gateway,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		now:      time.Now,
		log:      log.Named("settlement"),
	}
}

func settleKey(paymentID uint) string { return fmt.Sprintf("settle:payment:%d", paymentID) }
func refundKey(paymentID uint) string { return fmt.Sprintf("refund:payment:%d", paymentID) }
func transferKey(sessionID uint, leg string) string {
	return fmt.Sprintf("transfer:session:%d:%s", sessionID, leg)
}

// CreateCheckout opens (or returns the still open) checkout for an approved session.
func (s *SettlementService) CreateCheckout(ctx context.Context, sessionID, userID uint, urls CheckoutURLs) (*CheckoutResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := repository.NewSessionRepository(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, domain.ErrNotSessionOwner
	}
	if sess.IsPaid() {
		return nil, domain.Conflict("session is already paid")
	}
	if sess.Status != domain.SessionApproved && sess.Status != domain.SessionAwaitingPayment {
		return nil, domain.InvalidTransition(sess.Status, domain.SessionAwaitingPayment)
	}

	payments := repository.NewPaymentRepository(s.db)
	active, err := payments.FindActiveBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &CheckoutResult{Payment: active, URL: active.CheckoutURL, Reused: true}, nil
	}

	if urls.SuccessURL == "" {
		urls.SuccessURL = s.cfg.SuccessURL
	}
	if urls.CancelURL == "" {
		urls.CancelURL = s.cfg.CancelURL
	}
	currency := sess.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	idem := fmt.Sprintf("checkout:session:%d:%s", sess.ID, uuid.NewString())
	req := payment.CheckoutRequest{
		SessionID:      sess.ID,
		Amount:         sess.Price,
		Currency:       currency,
		Description:    fmt.Sprintf("Mentoring session #%d", sess.ID),
		SuccessURL:     urls.SuccessURL,
		CancelURL:      urls.CancelURL,
		IdempotencyKey: idem,
		Metadata: map[string]string{
			"session_id": strconv.FormatUint(uint64(sess.ID), 10),
			"user_id":    strconv.FormatUint(uint64(userID), 10),
		},
	}
	cs, err := s.gateway.CreateCheckout(ctx, req)
	if err != nil {
		s.log.Error("create checkout failed", zap.Uint("session_id", sess.ID), zap.Error(err))
		return nil, domain.Upstream("payment provider unavailable", err)
	}

	p := &models.Payment{
		SessionID:        sess.ID,
		UserID:           userID,
		Amount:           sess.Price,
		Currency:         currency,
		Status:           domain.PaymentPending,
		GatewayPaymentID: cs.PaymentIntentID,
		GatewaySessionID: cs.ID,
		CheckoutURL:      cs.URL,
		Metadata:         datatypes.JSONMap{"session_id": sess.ID, "idempotency_key": idem},
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewPaymentRepository(tx).CreateAttempt(ctx, p); err != nil {
			return err
		}
		sessions := repository.NewSessionRepository(tx)
		moved, err := sessions.TransitionStatus(ctx, sess.ID, []string{domain.SessionApproved}, domain.SessionAwaitingPayment, nil)
		if err != nil || moved {
			return err
		}
		cur, err := sessions.GetByID(ctx, sess.ID)
		if err != nil {
			return err
		}
		if cur.Status != domain.SessionAwaitingPayment {
			return domain.InvalidTransition(cur.Status, domain.SessionAwaitingPayment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("checkout created",
		zap.Uint("session_id", sess.ID),
		zap.Uint("payment_id", p.ID),
		zap.String("gateway_session_id", p.GatewaySessionID))
	return &CheckoutResult{Payment: p, URL: p.CheckoutURL}, nil
}

// HandleEvent applies one verified gateway event. A non-nil error means the
// delivery should be retried by the gateway.
func (s *SettlementService) HandleEvent(ctx context.Context, ev *payment.Event) error {
	events := repository.NewGatewayEventRepository(s.db)
	rec, err := events.Record(ctx, &models.GatewayEvent{
		EventID:          ev.ID,
		Type:             ev.Type,
		GatewaySessionID: ev.GatewaySessionID,
		Payload:          datatypes.JSON(ev.Raw),
		ReceivedAt:       s.now().UTC(),
	})
	if err != nil {
		return err
	}

	switch ev.Type {
	case payment.EventCheckoutCompleted:
		_, err = s.SettleCheckout(ctx, ev)
	case payment.EventCheckoutExpired, payment.EventPaymentFailed:
		err = s.failPayment(ctx, ev)
	case payment.EventChargeRefunded:
		err = s.refundPayment(ctx, ev)
	default:
		s.log.Debug("ignoring gateway event", zap.String("type", ev.Type), zap.String("event_id", ev.ID))
	}

	if err != nil {
		s.log.Error("gateway event failed",
			zap.String("event_id", ev.ID),
			zap.String("type", ev.Type),
			zap.Int("try", rec.TryCount),
			zap.Error(err))
		if mErr := events.MarkFailed(ctx, rec.ID, err); mErr != nil {
			s.log.Warn("mark gateway event failed", zap.Error(mErr))
		}
		return err
	}
	if mErr := events.MarkProcessed(ctx, rec.ID); mErr != nil {
		s.log.Warn("mark gateway event processed", zap.Error(mErr))
	}
	return nil
}

// SettleCheckout records a completed checkout: payment completed, platform
// wallet credited, session scheduled. It reports false for a delivery that
// had already been applied.
func (s *SettlementService) SettleCheckout(ctx context.Context, ev *payment.Event) (bool, error) {
	if ev.GatewaySessionID == "" {
		return false, domain.Validation("checkout event without session id")
	}
	p, err := repository.NewPaymentRepository(s.db).FindByGatewaySessionID(ctx, ev.GatewaySessionID)
	if err != nil {
		return false, fmt.Errorf("settle %s: %w", ev.GatewaySessionID, err)
	}
	if alreadySettled(p.Status) {
		s.log.Info("duplicate checkout completion ignored", zap.Uint("payment_id", p.ID), zap.String("event_id", ev.ID))
		return false, nil
	}
	// The ledger follows what the gateway actually charged.
	recorded, charged := p.Amount, p.Amount
	mismatch := ev.Amount.IsPositive() && !ev.Amount.Equal(p.Amount)
	if mismatch {
		charged = ev.Amount
		s.log.Warn("gateway amount differs from recorded amount",
			zap.Uint("payment_id", p.ID),
			zap.String("recorded", recorded.String()),
			zap.String("gateway", charged.String()))
	}
	platform, err := s.ledger.PlatformWallet(ctx)
	if err != nil {
		return false, err
	}

	var (
		settled  bool
		inactive bool
		sess     *models.Session
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := repository.NewPaymentRepository(tx)
		now := s.now().UTC()
		fields := map[string]interface{}{"completed_at": &now}
		if ev.PaymentIntentID != "" {
			fields["gateway_payment_id"] = ev.PaymentIntentID
		}
		if mismatch {
			fields["amount"] = charged
		}
		won, err := payments.CompareAndSetStatus(ctx, p.ID,
			[]string{domain.PaymentPending, domain.PaymentProcessing, domain.PaymentFailed}, domain.PaymentCompleted, fields)
		if err != nil {
			return err
		}
		if !won {
			cur, err := payments.GetByID(ctx, p.ID)
			if err != nil {
				return err
			}
			if alreadySettled(cur.Status) {
				return nil
			}
			return domain.Conflict(fmt.Sprintf("payment %d is %s", cur.ID, cur.Status))
		}

		key := settleKey(p.ID)
		applied, err := s.ledger.Applied(ctx, tx, key)
		if err != nil {
			return err
		}
		if !applied {
			_, err = s.ledger.Credit(ctx, tx, platform.ID, charged, LedgerEntry{
				Description:    fmt.Sprintf("Payment for session #%d", p.SessionID),
				SessionID:      &p.SessionID,
				Metadata:       map[string]interface{}{"payment_id": p.ID, "gateway_session_id": p.GatewaySessionID},
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
		}
		if mismatch {
			err := repository.NewAuditRepository(tx).Log(ctx, nil, "payment_amount_mismatch", "payment",
				strconv.FormatUint(uint64(p.ID), 10),
				map[string]interface{}{"session_id": p.SessionID, "recorded": recorded.String(), "charged": charged.String()})
			if err != nil {
				return err
			}
		}
		p.Amount = charged

		sessions := repository.NewSessionRepository(tx)
		moved, err := sessions.TransitionStatus(ctx, p.SessionID,
			[]string{domain.SessionApproved, domain.SessionAwaitingPayment}, domain.SessionScheduled,
			map[string]interface{}{"payment_status": domain.SessionPaymentCompleted})
		if err != nil {
			return err
		}
		if sess, err = sessions.GetByID(ctx, p.SessionID); err != nil {
			return err
		}
		if !moved {
			inactive = true
			err := repository.NewAuditRepository(tx).Log(ctx, nil, "payment_on_inactive_session", "session",
				strconv.FormatUint(uint64(p.SessionID), 10),
				map[string]interface{}{"payment_id": p.ID, "session_status": sess.Status, "amount": p.Amount.String()})
			if err != nil {
				return err
			}
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !settled {
		s.log.Info("concurrent checkout completion ignored", zap.Uint("payment_id", p.ID))
		return false, nil
	}

	if inactive {
		s.log.Warn("payment received for inactive session",
			zap.Uint("session_id", p.SessionID), zap.String("status", sess.Status), zap.Uint("payment_id", p.ID))
		return true, nil
	}
	s.log.Info("checkout settled",
		zap.Uint("payment_id", p.ID),
		zap.Uint("session_id", p.SessionID),
		zap.String("amount", p.Amount.String()))
	s.notify(Notice{
		RecipientID: sess.UserID,
		RelatedID:   &sess.ID,
		Type:        domain.NotifyPaymentReceived,
		Title:       "Payment received",
		Message:     fmt.Sprintf("Your payment of %s %s was received. Your session is scheduled.", p.Amount.StringFixed(2), p.Currency),
	})
	if dev, err := repository.NewDeveloperRepository(s.db).GetByID(ctx, sess.DeveloperID); err == nil {
		s.notify(Notice{
			RecipientID: dev.Owner().UserID(),
			SenderID:    &sess.UserID,
			RelatedID:   &sess.ID,
			Type:        domain.NotifySessionScheduled,
			Title:       "Session scheduled",
			Message:     fmt.Sprintf("Session #%d on %s is paid and scheduled.", sess.ID, sess.SessionDate),
		})
	}
	return true, nil
}

// alreadySettled reports whether a completion for a payment in status has
// been applied before. Refunded payments were completed first.
func alreadySettled(status string) bool {
	return status == domain.PaymentCompleted || status == domain.PaymentRefunded
}

// paymentForEvent finds the attempt an event refers to, by checkout session
// id first and payment intent second.
func (s *SettlementService) paymentForEvent(ctx context.Context, ev *payment.Event) (*models.Payment, error) {
	payments := repository.NewPaymentRepository(s.db)
	if ev.GatewaySessionID != "" {
		return payments.FindByGatewaySessionID(ctx, ev.GatewaySessionID)
	}
	if ev.PaymentIntentID != "" {
		return payments.FindByGatewayPaymentID(ctx, ev.PaymentIntentID)
	}
	return nil, domain.NotFound("payment")
}

func (s *SettlementService) failPayment(ctx context.Context, ev *payment.Event) error {
	p, err := s.paymentForEvent(ctx, ev)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("failure event for unknown payment", zap.String("event_id", ev.ID))
		return nil
	}
	if err != nil {
		return err
	}
	won, err := repository.NewPaymentRepository(s.db).CompareAndSetStatus(ctx, p.ID,
		[]string{domain.PaymentPending, domain.PaymentProcessing}, domain.PaymentFailed, nil)
	if err != nil {
		return err
	}
	if won {
		s.log.Info("payment failed", zap.Uint("payment_id", p.ID), zap.String("type", ev.Type))
	}
	return nil
}

// refundPayment marks a settled payment refunded. With RefundReversal on, the
// platform credit is reversed while the funds are still on the platform wallet.
func (s *SettlementService) refundPayment(ctx context.Context, ev *payment.Event) error {
	p, err := s.paymentForEvent(ctx, ev)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("refund event for unknown payment", zap.String("event_id", ev.ID))
		ref := ev.GatewaySessionID
		if ref == "" {
			ref = ev.PaymentIntentID
		}
		return repository.NewAuditRepository(s.db).Log(ctx, nil, "refund_for_unknown_payment", "payment", ref,
			map[string]interface{}{"event_id": ev.ID, "amount": ev.Amount.String()})
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		won, err := repository.NewPaymentRepository(tx).CompareAndSetStatus(ctx, p.ID,
			[]string{domain.PaymentCompleted}, domain.PaymentRefunded, map[string]interface{}{"refunded_at": &now})
		if err != nil || !won {
			return err
		}
		sess, err := repository.NewSessionRepository(tx).LockByID(ctx, p.SessionID)
		if err != nil {
			return err
		}
		audit := repository.NewAuditRepository(tx)
		resourceID := strconv.FormatUint(uint64(p.ID), 10)
		meta := map[string]interface{}{"session_id": p.SessionID, "amount": p.Amount.String()}

		if !s.cfg.RefundReversal || sess.IsTransferred() {
			s.log.Warn("refund not reversed on ledger", zap.Uint("payment_id", p.ID), zap.Bool("transferred", sess.IsTransferred()))
			return audit.Log(ctx, nil, "refund_not_reversed", "payment", resourceID, meta)
		}
		key := refundKey(p.ID)
		applied, err := s.ledger.Applied(ctx, tx, key)
		if err != nil || applied {
			return err
		}
		platform, err := repository.NewWalletRepository(tx).GetPlatform(ctx)
		if err != nil {
			return err
		}
		_, err = s.ledger.Debit(ctx, tx, platform.ID, p.Amount, LedgerEntry{
			Description:    fmt.Sprintf("Refund for session #%d", p.SessionID),
			SessionID:      &p.SessionID,
			Metadata:       map[string]interface{}{"payment_id": p.ID},
			IdempotencyKey: key,
		})
		if errors.Is(err, domain.ErrInsufficientFunds) {
			s.log.Error("refund reversal exceeds platform balance", zap.Uint("payment_id", p.ID))
			return audit.Log(ctx, nil, "refund_reversal_failed", "payment", resourceID, meta)
		}
		if err != nil {
			return err
		}
		s.log.Info("refund reversed on ledger", zap.Uint("payment_id", p.ID), zap.String("amount", p.Amount.String()))
		return audit.Log(ctx, nil, "refund_reversed", "payment", resourceID, meta)
	})
}

// TransferToDeveloper pays a settled session out of the platform wallet into
// the developer's wallet. Nothing is written unless every step succeeds.
func (s *SettlementService) TransferToDeveloper(ctx context.Context, sessionID, adminUserID uint) (*TransferResult, error) {
	var (
		res     TransferResult
		devUser uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repository.NewSessionRepository(tx).LockByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if !sess.IsPaid() {
			return domain.Conflict("session has not been paid")
		}
		if sess.IsTransferred() {
			return domain.Conflict("session funds already transferred")
		}
		p, err := repository.NewPaymentRepository(tx).FindCompletedBySession(ctx, sess.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.Conflict("session has no settled payment")
		}
		dev, err := repository.NewDeveloperRepository(tx).GetByID(ctx, sess.DeveloperID)
		if err != nil {
			return err
		}
		devUser = dev.Owner().UserID()

		wallets := repository.NewWalletRepository(tx)
		platform, err := wallets.GetPlatform(ctx)
		if err != nil {
			return err
		}
		devWallet, err := wallets.GetOrCreateForUser(ctx, devUser, p.Currency)
		if err != nil {
			return err
		}
		meta := map[string]interface{}{"payment_id": p.ID, "admin_id": adminUserID}
		err = s.ledger.Transfer(ctx, tx, platform.ID, devWallet.ID, p.Amount,
			LedgerEntry{
				Description:    fmt.Sprintf("Payout for session #%d", sess.ID),
				SessionID:      &sess.ID,
				Metadata:       meta,
				IdempotencyKey: transferKey(sess.ID, "debit"),
			},
			LedgerEntry{
				Description:    fmt.Sprintf("Earnings for session #%d", sess.ID),
				SessionID:      &sess.ID,
				Metadata:       meta,
				IdempotencyKey: transferKey(sess.ID, "credit"),
			})
		if err != nil {
			return err
		}
		ok, err := repository.NewSessionRepository(tx).MarkTransferred(ctx, sess.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("session funds already transferred")
		}
		res = TransferResult{SessionID: sess.ID, Amount: p.Amount, PlatformWalletID: platform.ID, DeveloperWalletID: devWallet.ID}
		return repository.NewAuditRepository(tx).Log(ctx, &adminUserID, "transfer_to_developer", "session",
			strconv.FormatUint(uint64(sess.ID), 10), map[string]interface{}{"amount": p.Amount.String(), "developer_wallet_id": devWallet.ID})
	})
	if err != nil {
		s.log.Error("transfer to developer failed", zap.Uint("session_id", sessionID), zap.Uint("admin_id", adminUserID), zap.Error(err))
		return nil, err
	}
	s.log.Info("transferred to developer",
		zap.Uint("session_id", sessionID),
		zap.String("amount", res.Amount.String()),
		zap.Uint("developer_wallet_id", res.DeveloperWalletID))
	s.notify(Notice{
		RecipientID: devUser,
		SenderID:    &adminUserID,
		RelatedID:   &res.SessionID,
		Type:        domain.NotifyPayoutReceived,
		Title:       "Payout received",
		Message:     fmt.Sprintf("%s was added to your wallet for session #%d.", res.Amount.StringFixed(2), res.SessionID),
	})
	return &res, nil
}

func (s *SettlementService) notify(n Notice) {
	if s.notifier == nil || n.RecipientID == 0 {
		return
	}
	s.notifier.Notify(n)
}
