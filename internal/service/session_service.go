package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentorbook/config"
	"mentorbook/internal/domain"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type BookInput struct {
	UserID          uint
	DeveloperID     uint
	StartTime       time.Time
	DurationMinutes int
	Topic           string
}

type ListFilter struct {
	Status string
	Page   int
	Limit  int
}

// SessionService owns the session lifecycle:
//
//	pending -> approved -> awaiting_payment -> scheduled -> active -> completed
//	pending -> rejected
//	pending|approved|awaiting_payment|scheduled -> cancelled
//
// The payment steps are driven by SettlementService.
type SessionService struct {
	db          *gorm.DB
	slots       *SlotService
	identity    *IdentityService
	notifier    Notifier
	maxDuration int
	locks       *keyedMutex
	now         func() time.Time
	log         *zap.Logger
}

func NewSessionService(db *gorm.DB, slots *SlotService, identity *IdentityService, notifier Notifier, cfg config.BookingConfig, log *zap.Logger) *SessionService {
	maxDur := cfg.MaxDurationMinutes
	if maxDur <= 0 {
		maxDur = 480
	}
	return &SessionService{
		db:          db,
		slots:       slots,
		identity:    identity,
		notifier:    notifier,
		maxDuration: maxDur,
		locks:       newKeyedMutex(),
		now:         time.Now,
		log:         log.Named("sessions"),
	}
}

// Book creates a pending session. Bookings for one developer are serialised
// by an in-process lock and a row lock on the developer profile, so the
// availability check and the insert cannot interleave with another booking.
func (s *SessionService) Book(ctx context.Context, in BookInput) (*models.Session, error) {
	if in.DurationMinutes <= 0 || in.DurationMinutes > s.maxDuration {
		return nil, domain.Validation(fmt.Sprintf("duration must be between 1 and %d minutes", s.maxDuration))
	}
	if in.StartTime.IsZero() {
		return nil, domain.Validation("start time is required")
	}
	if in.StartTime.Before(s.now()) {
		return nil, domain.Validation("start time must be in the future")
	}
	user, err := s.identity.User(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	dev, err := s.identity.Developer(ctx, in.DeveloperID)
	if err != nil {
		return nil, err
	}
	if !dev.IsApproved {
		return nil, domain.Validation("developer is not accepting bookings")
	}
	if dev.Owner().UserID() == in.UserID {
		return nil, domain.Validation("cannot book a session with yourself")
	}

	start := in.StartTime.UTC()
	sess := &models.Session{
		UserID:      in.UserID,
		DeveloperID: dev.ID,
		SessionDate: s.slots.Day(start),
		StartTime:   start,
		Duration:    in.DurationMinutes,
		Price:       sessionPrice(dev.HourlyRate, in.DurationMinutes),
		Currency:    dev.Currency,
		Topic:       strings.TrimSpace(in.Topic),
		Status:      domain.SessionPending,
	}

	unlock := s.locks.Lock(dev.ID)
	defer unlock()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repository.NewDeveloperRepository(tx).LockByID(ctx, dev.ID); err != nil {
			return err
		}
		ok, err := s.slots.isAvailable(ctx, tx, dev.ID, sess.SessionDate, start, in.DurationMinutes)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSlotUnavailable
		}
		return repository.NewSessionRepository(tx).Create(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session booked",
		zap.Uint("session_id", sess.ID),
		zap.Uint("developer_id", dev.ID),
		zap.Uint("user_id", in.UserID),
		zap.Time("start", start))
	s.notify(Notice{
		RecipientID: dev.Owner().UserID(),
		SenderID:    &user.ID,
		RelatedID:   &sess.ID,
		Type:        domain.NotifySessionRequested,
		Title:       "New session request",
		Message:     fmt.Sprintf("%s requested a %d minute session on %s at %s", user.DisplayName(), sess.Duration, sess.SessionDate, s.slots.Marker(start)),
	})
	return sess, nil
}

// sessionPrice is hourlyRate * minutes / 60, rounded to cents.
func sessionPrice(hourlyRate decimal.Decimal, minutes int) decimal.Decimal {
	return hourlyRate.Mul(decimal.NewFromInt(int64(minutes))).Div(decimal.NewFromInt(60)).Round(2)
}

func (s *SessionService) Accept(ctx context.Context, sessionID, developerUserID uint) (*models.Session, error) {
	sess, dev, err := s.loadAsHost(ctx, sessionID, developerUserID)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, sess.ID, []string{domain.SessionPending}, domain.SessionApproved, nil)
	if err != nil {
		return nil, err
	}
	s.notify(Notice{
		RecipientID: updated.UserID,
		SenderID:    &developerUserID,
		RelatedID:   &updated.ID,
		Type:        domain.NotifySessionApproved,
		Title:       "Session accepted",
		Message:     fmt.Sprintf("%s accepted your session request. Complete the payment to confirm it.", dev.Title),
	})
	return updated, nil
}

func (s *SessionService) Reject(ctx context.Context, sessionID, developerUserID uint, reason string) (*models.Session, error) {
	sess, dev, err := s.loadAsHost(ctx, sessionID, developerUserID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validation("rejection reason is required")
	}
	updated, err := s.transition(ctx, sess.ID, []string{domain.SessionPending}, domain.SessionRejected,
		map[string]interface{}{"rejection_reason": reason})
	if err != nil {
		return nil, err
	}
	s.notify(Notice{
		RecipientID: updated.UserID,
		SenderID:    &developerUserID,
		RelatedID:   &updated.ID,
		Type:        domain.NotifySessionRejected,
		Title:       "Session declined",
		Message:     fmt.Sprintf("%s declined your session request: %s", dev.Title, reason),
	})
	return updated, nil
}

// Start moves a scheduled session to active once its start time has been reached.
func (s *SessionService) Start(ctx context.Context, sessionID uint, actor domain.Actor) (*models.Session, error) {
	sess, _, err := s.loadAsHostOrAdmin(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sess.Status == domain.SessionScheduled && now.Before(sess.StartTime) {
		return nil, domain.Conflict("session cannot start before its scheduled time")
	}
	started := now.UTC()
	updated, err := s.transition(ctx, sess.ID, []string{domain.SessionScheduled}, domain.SessionActive,
		map[string]interface{}{"started_at": &started})
	if err != nil {
		return nil, err
	}
	s.notify(Notice{
		RecipientID: updated.UserID,
		SenderID:    &actor.UserID,
		RelatedID:   &updated.ID,
		Type:        domain.NotifySessionStarted,
		Title:       "Session started",
		Message:     "Your session has started.",
	})
	return updated, nil
}

func (s *SessionService) Complete(ctx context.Context, sessionID uint, actor domain.Actor) (*models.Session, error) {
	sess, _, err := s.loadAsHostOrAdmin(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	done := s.now().UTC()
	updated, err := s.transition(ctx, sess.ID, []string{domain.SessionActive}, domain.SessionCompleted,
		map[string]interface{}{"completed_at": &done})
	if err != nil {
		return nil, err
	}
	s.notify(Notice{
		RecipientID: updated.UserID,
		SenderID:    &actor.UserID,
		RelatedID:   &updated.ID,
		Type:        domain.NotifySessionCompleted,
		Title:       "Session completed",
		Message:     "Your session has been marked as completed.",
	})
	return updated, nil
}

// Cancel is allowed for either party or an admin. It never touches wallets;
// refunds for paid sessions go through the gateway.
func (s *SessionService) Cancel(ctx context.Context, sessionID uint, actor domain.Actor, reason string) (*models.Session, error) {
	sess, err := repository.NewSessionRepository(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	hostUserID, err := s.hostUserID(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != sess.UserID && actor.UserID != hostUserID {
		return nil, domain.ErrNotSessionOwner
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validation("cancellation reason is required")
	}
	at := s.now().UTC()
	updated, err := s.transition(ctx, sess.ID, domain.CancellableStatuses, domain.SessionCancelled,
		map[string]interface{}{"rejection_reason": reason, "cancelled_at": &at})
	if err != nil {
		return nil, err
	}
	if updated.IsPaid() {
		s.log.Warn("paid session cancelled, refund is a manual action",
			zap.Uint("session_id", updated.ID), zap.String("price", updated.Price.String()))
	}
	for _, recipient := range []uint{updated.UserID, hostUserID} {
		if recipient == actor.UserID {
			continue
		}
		s.notify(Notice{
			RecipientID: recipient,
			SenderID:    &actor.UserID,
			RelatedID:   &updated.ID,
			Type:        domain.NotifySessionCancelled,
			Title:       "Session cancelled",
			Message:     "A session was cancelled: " + reason,
		})
	}
	return updated, nil
}

// DeletePending removes a session its creator no longer wants, while still pending.
func (s *SessionService) DeletePending(ctx context.Context, sessionID, userID uint) error {
	repo := repository.NewSessionRepository(s.db)
	sess, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return domain.ErrNotSessionOwner
	}
	ok, err := repo.DeleteIfStatus(ctx, sessionID, domain.SessionPending)
	if err != nil {
		return err
	}
	if !ok {
		cur, err := repo.GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		return domain.InvalidTransition(cur.Status, "deleted")
	}
	return nil
}

// Get returns a session visible to actor: either party, or an admin.
func (s *SessionService) Get(ctx context.Context, sessionID uint, actor domain.Actor) (*models.Session, error) {
	sess, err := repository.NewSessionRepository(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || sess.UserID == actor.UserID {
		return sess, nil
	}
	host, err := s.hostUserID(ctx, sess)
	if err != nil {
		return nil, err
	}
	if host != actor.UserID {
		return nil, domain.ErrNotSessionOwner
	}
	return sess, nil
}

// List returns the actor's sessions (booked or hosted); admins see all.
func (s *SessionService) List(ctx context.Context, actor domain.Actor, f ListFilter) ([]models.Session, int64, error) {
	if err := validatePage(f.Page, f.Limit); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !domain.Contains(allSessionStatuses, f.Status) {
		return nil, 0, domain.Validation("unknown status " + f.Status)
	}
	q := repository.SessionQuery{Status: f.Status, Limit: f.Limit, Offset: (f.Page - 1) * f.Limit}
	if !actor.IsAdmin() {
		q.UserID = actor.UserID
		dev, err := s.identity.DeveloperForUser(ctx, actor.UserID)
		switch {
		case err == nil:
			q.DeveloperID = dev.ID
		case !errors.Is(err, domain.ErrNotFound):
			return nil, 0, err
		}
	}
	return repository.NewSessionRepository(s.db).List(ctx, q)
}

var allSessionStatuses = []string{
	domain.SessionPending, domain.SessionApproved, domain.SessionRejected, domain.SessionAwaitingPayment,
	domain.SessionScheduled, domain.SessionActive, domain.SessionCompleted, domain.SessionCancelled,
}

// loadAsHost loads the session and checks the acting user owns its developer profile.
func (s *SessionService) loadAsHost(ctx context.Context, sessionID, userID uint) (*models.Session, *models.DeveloperProfile, error) {
	sess, err := repository.NewSessionRepository(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	dev, err := s.identity.Developer(ctx, sess.DeveloperID)
	if err != nil {
		return nil, nil, err
	}
	if dev.Owner().UserID() != userID {
		return nil, nil, domain.ErrNotSessionOwner
	}
	return sess, dev, nil
}

func (s *SessionService) loadAsHostOrAdmin(ctx context.Context, sessionID uint, actor domain.Actor) (*models.Session, *models.DeveloperProfile, error) {
	if !actor.IsAdmin() {
		return s.loadAsHost(ctx, sessionID, actor.UserID)
	}
	sess, err := repository.NewSessionRepository(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, nil, nil
}

func (s *SessionService) hostUserID(ctx context.Context, sess *models.Session) (uint, error) {
	dev, err := s.identity.Developer(ctx, sess.DeveloperID)
	if err != nil {
		return 0, err
	}
	return dev.Owner().UserID(), nil
}

// transition applies a status compare-and-swap and returns the fresh row.
// A lost swap reports the status the session actually has.
func (s *SessionService) transition(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) (*models.Session, error) {
	repo := repository.NewSessionRepository(s.db)
	ok, err := repo.TransitionStatus(ctx, id, from, to, fields)
	if err != nil {
		return nil, err
	}
	cur, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.InvalidTransition(cur.Status, to)
	}
	s.log.Debug("session transition", zap.Uint("session_id", id), zap.String("to", to))
	return cur, nil
}

func (s *SessionService) notify(n Notice) {
	if s.notifier == nil || n.RecipientID == 0 {
		return
	}
	s.notifier.Notify(n)
}
