package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"mentorbook/config"
	"mentorbook/internal/database"
	"mentorbook/internal/database/dbtest"
	"mentorbook/internal/domain"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"
	"mentorbook/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingNotifier captures notices synchronously.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Type)
	}
	return out
}

// failingGateway refuses every checkout.
type failingGateway struct{ payment.StubGateway }

func (failingGateway) CreateCheckout(context.Context, payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	return nil, context.DeadlineExceeded
}

type fixture struct {
	ctx        context.Context
	db         *gorm.DB
	now        time.Time
	notes      *recordingNotifier
	gateway    *payment.StubGateway
	identity   *IdentityService
	slots      *SlotService
	ledger     *LedgerService
	sessions   *SessionService
	settlement *SettlementService

	user     *models.User
	devUser  *models.User
	dev      *models.DeveloperProfile
	admin    domain.Actor
	platform *models.Wallet
}

var fixtureNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	log := zap.NewNop()

	cfg := &config.Config{
		Booking: config.BookingConfig{Timezone: "UTC", SlotGranularity: 30 * time.Minute, MaxDurationMinutes: 480},
		Payment: config.PaymentConfig{Currency: "USD", RefundReversal: true, SuccessURL: "https://app/ok", CancelURL: "https://app/cancel"},
		Admin:   config.AdminConfig{Email: "admin@test.local", Name: "Platform"},
	}
	platform, err := database.SeedPlatform(ctx, db, cfg, log)
	if err != nil {
		t.Fatalf("seed platform: %v", err)
	}
	var admin models.User
	if err := db.Where("email = ?", cfg.Admin.Email).First(&admin).Error; err != nil {
		t.Fatalf("load admin: %v", err)
	}

	users := repository.NewUserRepository(db)
	devs := repository.NewDeveloperRepository(db)
	user := &models.User{Name: "Ada", Email: "ada@test.local", Role: domain.RoleUser}
	devUser := &models.User{Name: "Linus", Email: "linus@test.local", Role: domain.RoleDeveloper}
	for _, u := range []*models.User{user, devUser} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	dev := &models.DeveloperProfile{UserID: devUser.ID, Title: "Go mentor", HourlyRate: decimal.NewFromInt(60), Currency: "USD", IsApproved: true}
	if err := devs.Create(ctx, dev); err != nil {
		t.Fatalf("create developer: %v", err)
	}

	f := &fixture{
		ctx:      ctx,
		db:       db,
		now:      fixtureNow,
		notes:    &recordingNotifier{},
		gateway:  payment.NewStubGateway("whsec_test"),
		user:     user,
		devUser:  devUser,
		dev:      dev,
		admin:    domain.Actor{UserID: admin.ID, Role: domain.RoleAdmin},
		platform: platform,
	}
	clock := func() time.Time { return f.now }
	f.identity = NewIdentityService(users, devs)
	f.slots = NewSlotService(db, cfg.Booking, log)
	f.slots.now = clock
	f.ledger = NewLedgerService(db, "USD", log)
	f.sessions = NewSessionService(db, f.slots, f.identity, f.notes, cfg.Booking, log)
	f.sessions.now = clock
	f.settlement = NewSettlementService(db, f.gateway, f.ledger, f.notes, cfg.Payment, log)
	f.settlement.now = clock
	return f
}

func at(date, hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", date+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func (f *fixture) book(t *testing.T, start time.Time, minutes int) *models.Session {
	t.Helper()
	s, err := f.sessions.Book(f.ctx, BookInput{UserID: f.user.ID, DeveloperID: f.dev.ID, StartTime: start, DurationMinutes: minutes})
	if err != nil {
		t.Fatalf("book %s: %v", start, err)
	}
	return s
}

// approvedCheckout books, accepts and opens a checkout for a 30 minute session.
func (f *fixture) approvedCheckout(t *testing.T, start time.Time) (*models.Session, *CheckoutResult) {
	t.Helper()
	s := f.book(t, start, 30)
	if _, err := f.sessions.Accept(f.ctx, s.ID, f.devUser.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	res, err := f.settlement.CreateCheckout(f.ctx, s.ID, f.user.ID, CheckoutURLs{})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return s, res
}

// event builds a verified gateway event for p.
func (f *fixture) event(t *testing.T, eventID, eventType string, p *models.Payment) *payment.Event {
	t.Helper()
	obj := map[string]interface{}{
		"id":             p.GatewaySessionID,
		"payment_intent": p.GatewayPaymentID,
		"amount_total":   payment.ToMinorUnits(p.Amount),
		"currency":       p.Currency,
	}
	if eventType == payment.EventChargeRefunded {
		obj["id"] = "ch_" + eventID
		obj["metadata"] = map[string]string{"checkout_session_id": p.GatewaySessionID}
	}
	payload, sig := f.gateway.SignedEvent(eventID, eventType, obj)
	ev, err := f.gateway.VerifyAndParseWebhook(payload, sig)
	if err != nil {
		t.Fatalf("verify event: %v", err)
	}
	return ev
}

func (f *fixture) session(t *testing.T, id uint) *models.Session {
	t.Helper()
	s, err := repository.NewSessionRepository(f.db).GetByID(f.ctx, id)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return s
}

func (f *fixture) wallet(t *testing.T, id uint) *models.Wallet {
	t.Helper()
	w, err := f.ledger.Wallet(f.ctx, id)
	if err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	return w
}

func (f *fixture) txCount(t *testing.T, walletID uint) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID).Count(&n).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func (f *fixture) assertBalanced(t *testing.T, walletID uint) {
	t.Helper()
	rec, err := f.ledger.Reconcile(f.ctx, walletID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Balanced {
		t.Fatalf("wallet %d balance %s != ledger sum %s", walletID, rec.Balance, rec.LedgerSum)
	}
}

func wantKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("error kind = %v (%v), want %v", got, err, kind)
	}
}
