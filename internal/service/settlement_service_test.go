package service

import (
	"errors"
	"sync"
	"testing"

	"mentorbook/internal/domain"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"
	"mentorbook/pkg/payment"

	"github.com/shopspring/decimal"
)

func TestCheckoutAndSettlement(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))

	if got := f.session(t, s.ID); got.Status != domain.SessionAwaitingPayment {
		t.Fatalf("after checkout status = %s", got.Status)
	}
	if res.Payment.Status != domain.PaymentPending || res.URL != "https://app/ok" {
		t.Fatalf("checkout = %+v", res)
	}

	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	got := f.session(t, s.ID)
	if got.Status != domain.SessionScheduled || got.PaymentStatus != domain.SessionPaymentCompleted {
		t.Fatalf("session = %s/%s", got.Status, got.PaymentStatus)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.Equal(s.Price) {
		t.Fatalf("platform balance = %s, want %s", bal, s.Price)
	}
	p, _ := repository.NewPaymentRepository(f.db).GetByID(f.ctx, res.Payment.ID)
	if p.Status != domain.PaymentCompleted || p.CompletedAt == nil {
		t.Fatalf("payment = %+v", p)
	}
	txs, _, _ := f.ledger.Transactions(f.ctx, f.platform.ID, 1, 10)
	if len(txs) != 1 || txs[0].Type != domain.TxCredit || txs[0].SessionID == nil || *txs[0].SessionID != s.ID {
		t.Fatalf("platform transactions = %+v", txs)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestReplayedCompletionCreditsOnce(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	ev := f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)

	for i := 0; i < 3; i++ {
		if err := f.settlement.HandleEvent(f.ctx, ev); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	// a fresh event id for the same checkout is a duplicate too
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_2", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("second event: %v", err)
	}

	if n := f.txCount(t, f.platform.ID); n != 1 {
		t.Fatalf("credits = %d, want 1", n)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.Equal(s.Price) {
		t.Fatalf("platform balance = %s", bal)
	}
	rec, err := repository.NewGatewayEventRepository(f.db).GetByEventID(f.ctx, "evt_1")
	if err != nil {
		t.Fatalf("gateway event: %v", err)
	}
	if rec.TryCount != 3 || rec.Status != domain.GatewayEventProcessed {
		t.Fatalf("gateway event = %+v", rec)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestConcurrentCompletionCreditsOnce(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	ev := f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.settlement.HandleEvent(f.ctx, ev)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent delivery: %v", err)
		}
	}
	if n := f.txCount(t, f.platform.ID); n != 1 {
		t.Fatalf("credits = %d, want 1", n)
	}
	got := f.session(t, s.ID)
	if got.Status != domain.SessionScheduled || !got.IsPaid() {
		t.Fatalf("session = %s/%s", got.Status, got.PaymentStatus)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestCompletionForUnknownPaymentFails(t *testing.T) {
	f := newFixture(t)
	ghost := &models.Payment{GatewaySessionID: "cs_unknown", Amount: decimal.NewFromInt(10), Currency: "USD"}
	err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_x", payment.EventCheckoutCompleted, ghost))
	wantKind(t, err, domain.KindNotFound)

	rec, _ := repository.NewGatewayEventRepository(f.db).GetByEventID(f.ctx, "evt_x")
	if rec == nil || rec.Status != domain.GatewayEventFailed || rec.Error == "" {
		t.Fatalf("gateway event = %+v", rec)
	}
	if n := f.txCount(t, f.platform.ID); n != 0 {
		t.Fatalf("credits = %d", n)
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	f := newFixture(t)
	_, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", "customer.created", res.Payment)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
}

func TestCheckoutRules(t *testing.T) {
	f := newFixture(t)
	pending := f.book(t, at("2024-06-01", "09:00"), 30)
	_, err := f.settlement.CreateCheckout(f.ctx, pending.ID, f.user.ID, CheckoutURLs{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("checkout of pending session err = %v", err)
	}

	s, first := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if _, err := f.settlement.CreateCheckout(f.ctx, s.ID, f.devUser.ID, CheckoutURLs{}); !errors.Is(err, domain.ErrNotSessionOwner) {
		t.Fatalf("checkout by host err = %v", err)
	}
	again, err := f.settlement.CreateCheckout(f.ctx, s.ID, f.user.ID, CheckoutURLs{})
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if !again.Reused || again.Payment.ID != first.Payment.ID {
		t.Fatalf("second checkout = %+v, want reuse of %d", again, first.Payment.ID)
	}

	// after expiry a new attempt is opened
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_exp", payment.EventCheckoutExpired, first.Payment)); err != nil {
		t.Fatalf("expire: %v", err)
	}
	third, err := f.settlement.CreateCheckout(f.ctx, s.ID, f.user.ID, CheckoutURLs{SuccessURL: "https://app/custom"})
	if err != nil {
		t.Fatalf("checkout after expiry: %v", err)
	}
	if third.Reused || third.Payment.ID == first.Payment.ID || third.URL != "https://app/custom" {
		t.Fatalf("third checkout = %+v", third)
	}
	old, _ := repository.NewPaymentRepository(f.db).GetByID(f.ctx, first.Payment.ID)
	if old.Status != domain.PaymentFailed {
		t.Fatalf("expired payment status = %s", old.Status)
	}
	if got := f.session(t, s.ID); got.Status != domain.SessionAwaitingPayment {
		t.Fatalf("session status = %s", got.Status)
	}
}

func TestCheckoutGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.settlement.gateway = &failingGateway{}
	s := f.book(t, at("2024-06-01", "10:00"), 30)
	if _, err := f.sessions.Accept(f.ctx, s.ID, f.devUser.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err := f.settlement.CreateCheckout(f.ctx, s.ID, f.user.ID, CheckoutURLs{})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want upstream", err)
	}
	if got := f.session(t, s.ID); got.Status != domain.SessionApproved {
		t.Fatalf("status = %s", got.Status)
	}
	list, _ := repository.NewPaymentRepository(f.db).ListBySession(f.ctx, s.ID)
	if len(list) != 0 {
		t.Fatalf("payments recorded = %d", len(list))
	}
}

func TestPaymentOnCancelledSession(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if _, err := f.sessions.Cancel(f.ctx, s.ID, domain.Actor{UserID: f.user.ID, Role: domain.RoleUser}, "no longer needed"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	got := f.session(t, s.ID)
	if got.Status != domain.SessionCancelled || got.IsPaid() {
		t.Fatalf("session = %s/%s", got.Status, got.PaymentStatus)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.Equal(s.Price) {
		t.Fatalf("platform balance = %s", bal)
	}
	logs, _ := repository.NewAuditRepository(f.db).ListByAction(f.ctx, "payment_on_inactive_session")
	if len(logs) != 1 {
		t.Fatalf("audit entries = %d", len(logs))
	}
}

func TestRefundReversesUntransferredCredit(t *testing.T) {
	f := newFixture(t)
	_, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	refund := f.event(t, "evt_r", payment.EventChargeRefunded, res.Payment)
	for i := 0; i < 2; i++ {
		if err := f.settlement.HandleEvent(f.ctx, refund); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
	}
	p, _ := repository.NewPaymentRepository(f.db).GetByID(f.ctx, res.Payment.ID)
	if p.Status != domain.PaymentRefunded || p.RefundedAt == nil {
		t.Fatalf("payment = %+v", p)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.IsZero() {
		t.Fatalf("platform balance = %s, want 0", bal)
	}
	if n := f.txCount(t, f.platform.ID); n != 2 {
		t.Fatalf("transactions = %d, want credit+debit", n)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestCompletionAfterRefundIsDuplicate(t *testing.T) {
	f := newFixture(t)
	_, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	completed := f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)
	if err := f.settlement.HandleEvent(f.ctx, completed); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_r", payment.EventChargeRefunded, res.Payment)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := f.settlement.HandleEvent(f.ctx, completed); err != nil {
		t.Fatalf("late completion: %v", err)
	}
	settled, err := f.settlement.SettleCheckout(f.ctx, completed)
	if err != nil || settled {
		t.Fatalf("settle after refund = %v, %v", settled, err)
	}

	p, _ := repository.NewPaymentRepository(f.db).GetByID(f.ctx, res.Payment.ID)
	if p.Status != domain.PaymentRefunded {
		t.Fatalf("payment status = %s", p.Status)
	}
	rec, _ := repository.NewGatewayEventRepository(f.db).GetByEventID(f.ctx, "evt_1")
	if rec == nil || rec.Status != domain.GatewayEventProcessed {
		t.Fatalf("gateway event = %+v", rec)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.IsZero() {
		t.Fatalf("platform balance = %s, want 0", bal)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestRefundForUnknownPaymentAcknowledged(t *testing.T) {
	f := newFixture(t)
	ghost := &models.Payment{GatewaySessionID: "cs_unknown", Amount: decimal.NewFromInt(10), Currency: "USD"}
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_r", payment.EventChargeRefunded, ghost)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	logs, _ := repository.NewAuditRepository(f.db).ListByAction(f.ctx, "refund_for_unknown_payment")
	if len(logs) != 1 || logs[0].ResourceID != "cs_unknown" {
		t.Fatalf("audit entries = %+v", logs)
	}
	rec, _ := repository.NewGatewayEventRepository(f.db).GetByEventID(f.ctx, "evt_r")
	if rec == nil || rec.Status != domain.GatewayEventProcessed {
		t.Fatalf("gateway event = %+v", rec)
	}
}

func TestSettlementCreditsChargedAmount(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	charged := *res.Payment
	charged.Amount = decimal.NewFromInt(45)
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, &charged)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if bal := f.wallet(t, f.platform.ID).Balance; !bal.Equal(charged.Amount) {
		t.Fatalf("platform balance = %s, want %s", bal, charged.Amount)
	}
	p, _ := repository.NewPaymentRepository(f.db).GetByID(f.ctx, res.Payment.ID)
	if !p.Amount.Equal(charged.Amount) || p.Status != domain.PaymentCompleted {
		t.Fatalf("payment = %s/%s", p.Amount, p.Status)
	}
	logs, _ := repository.NewAuditRepository(f.db).ListByAction(f.ctx, "payment_amount_mismatch")
	if len(logs) != 1 {
		t.Fatalf("audit entries = %d", len(logs))
	}
	if got := f.session(t, s.ID).Status; got != domain.SessionScheduled {
		t.Fatalf("session status = %s", got)
	}

	tr, err := f.settlement.TransferToDeveloper(f.ctx, s.ID, f.admin.UserID)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !tr.Amount.Equal(charged.Amount) {
		t.Fatalf("transferred %s, want %s", tr.Amount, charged.Amount)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestRefundWithoutReversal(t *testing.T) {
	f := newFixture(t)
	f.settlement.cfg.RefundReversal = false
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_r", payment.EventChargeRefunded, res.Payment)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.Equal(s.Price) {
		t.Fatalf("platform balance = %s", bal)
	}
	logs, _ := repository.NewAuditRepository(f.db).ListByAction(f.ctx, "refund_not_reversed")
	if len(logs) != 1 {
		t.Fatalf("audit entries = %d", len(logs))
	}
}

func TestTransferToDeveloper(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	out, err := f.settlement.TransferToDeveloper(f.ctx, s.ID, f.admin.UserID)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !out.Amount.Equal(s.Price) {
		t.Fatalf("amount = %s", out.Amount)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.IsZero() {
		t.Fatalf("platform balance = %s", bal)
	}
	devWallet := f.wallet(t, out.DeveloperWalletID)
	if devWallet.UserID == nil || *devWallet.UserID != f.devUser.ID || !devWallet.Balance.Equal(s.Price) {
		t.Fatalf("developer wallet = %+v", devWallet)
	}
	if got := f.session(t, s.ID); got.PaymentTransferStatus != domain.TransferTransferred {
		t.Fatalf("transfer status = %s", got.PaymentTransferStatus)
	}
	var refs int64
	f.db.Model(&models.WalletTransaction{}).Where("session_id = ?", s.ID).Count(&refs)
	if refs != 3 {
		t.Fatalf("transactions referencing session = %d, want settle+debit+credit", refs)
	}

	_, err = f.settlement.TransferToDeveloper(f.ctx, s.ID, f.admin.UserID)
	wantKind(t, err, domain.KindConflict)

	// refund after payout is recorded but not reversed
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_r", payment.EventChargeRefunded, res.Payment)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if logs, _ := repository.NewAuditRepository(f.db).ListByAction(f.ctx, "refund_not_reversed"); len(logs) != 1 {
		t.Fatalf("refund audit entries = %d", len(logs))
	}
	f.assertBalanced(t, f.platform.ID)
	f.assertBalanced(t, devWallet.ID)
}

func TestTransferInsufficientFundsRollsBack(t *testing.T) {
	f := newFixture(t)
	s, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// drain the platform wallet below the session price
	if _, err := f.ledger.Debit(f.ctx, nil, f.platform.ID, decimal.NewFromInt(20), LedgerEntry{Description: "manual adjustment"}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	balBefore := f.wallet(t, f.platform.ID).Balance
	txBefore := f.txCount(t, f.platform.ID)

	_, err := f.settlement.TransferToDeveloper(f.ctx, s.ID, f.admin.UserID)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	if bal := f.wallet(t, f.platform.ID).Balance; !bal.Equal(balBefore) {
		t.Fatalf("platform balance %s -> %s", balBefore, bal)
	}
	if n := f.txCount(t, f.platform.ID); n != txBefore {
		t.Fatalf("platform transactions %d -> %d", txBefore, n)
	}
	if _, err := repository.NewWalletRepository(f.db).GetByUserID(f.ctx, f.devUser.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("developer wallet exists after rollback: %v", err)
	}
	if got := f.session(t, s.ID); got.PaymentTransferStatus != domain.TransferPending {
		t.Fatalf("transfer status = %s", got.PaymentTransferStatus)
	}
	f.assertBalanced(t, f.platform.ID)
}

func TestTransferRequiresPaidSession(t *testing.T) {
	f := newFixture(t)
	s := f.book(t, at("2024-06-01", "10:00"), 30)
	_, err := f.settlement.TransferToDeveloper(f.ctx, s.ID, f.admin.UserID)
	wantKind(t, err, domain.KindConflict)
	_, err = f.settlement.TransferToDeveloper(f.ctx, 9999, f.admin.UserID)
	wantKind(t, err, domain.KindNotFound)
}

func TestSettlementNotifiesBothParties(t *testing.T) {
	f := newFixture(t)
	_, res := f.approvedCheckout(t, at("2024-06-01", "10:00"))
	f.notes = &recordingNotifier{}
	f.settlement.notifier = f.notes
	if err := f.settlement.HandleEvent(f.ctx, f.event(t, "evt_1", payment.EventCheckoutCompleted, res.Payment)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	got := f.notes.types()
	if len(got) != 2 || got[0] != domain.NotifyPaymentReceived || got[1] != domain.NotifySessionScheduled {
		t.Fatalf("notices = %v", got)
	}
}
