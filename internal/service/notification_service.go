package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"mentorbook/internal/models"
	"mentorbook/internal/repository"

	"go.uber.org/zap"
)

// Notice is a best-effort message to one user.
type Notice struct {
	RecipientID uint
	Title       string
	Message     string
	Type        string
	SenderID    *uint
	RelatedID   *uint
}

// Notifier accepts notices without blocking and never reports delivery failures.
type Notifier interface {
	Notify(n Notice)
}

// Pusher delivers a payload to a user's live connections (see ws.Hub).
type Pusher interface {
	BroadcastToUser(userID uint, payload interface{}) int
}

// NotificationService queues notices and delivers them on its own workers:
// store, websocket push, then FCM. Failures are logged and dropped.
type NotificationService struct {
	repo  *repository.NotificationRepository
	users *repository.UserRepository
	hub   Pusher
	fcm   *FCMService
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Notice
	wg     sync.WaitGroup
}

func NewNotificationService(repo *repository.NotificationRepository, users *repository.UserRepository, hub Pusher, fcm *FCMService, queueSize, workers int, log *zap.Logger) *NotificationService {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	s := &NotificationService{
		repo:  repo,
		users: users,
		hub:   hub,
		fcm:   fcm,
		log:   log.Named("notify"),
		queue: make(chan Notice, queueSize),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *NotificationService) Notify(n Notice) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn("notification dropped after close", zap.Uint("recipient", n.RecipientID), zap.String("type", n.Type))
		return
	}
	select {
	case s.queue <- n:
	default:
		s.log.Warn("notification queue full, dropping", zap.Uint("recipient", n.RecipientID), zap.String("type", n.Type))
	}
}

// Close stops accepting notices and waits for queued ones to be delivered.
func (s *NotificationService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for n := range s.queue {
		s.deliver(n)
	}
}

func (s *NotificationService) deliver(n Notice) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notification delivery panicked", zap.Any("panic", r), zap.Uint("recipient", n.RecipientID))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := &models.Notification{
		UserID:    n.RecipientID,
		SenderID:  n.SenderID,
		RelatedID: n.RelatedID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Message,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.log.Warn("store notification failed", zap.Error(err), zap.Uint("recipient", n.RecipientID))
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(n.RecipientID, map[string]interface{}{
			"type":         "notification",
			"notification": rec,
		})
	}
	if s.fcm == nil {
		return
	}
	u, err := s.users.GetByID(ctx, n.RecipientID)
	if err != nil || u.FCMToken == "" {
		return
	}
	data := map[string]string{"type": n.Type}
	if n.RelatedID != nil {
		data["related_id"] = strconv.FormatUint(uint64(*n.RelatedID), 10)
	}
	if err := s.fcm.Send(ctx, u.FCMToken, n.Title, n.Message, data); err != nil {
		s.log.Warn("push failed", zap.Error(err), zap.Uint("recipient", n.RecipientID))
	}
}

// List pages through a user's stored notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uint, page, limit int) ([]models.Notification, int64, error) {
	if err := validatePage(page, limit); err != nil {
		return nil, 0, err
	}
	list, err := s.repo.ListByUserID(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllRead(ctx, userID)
}
