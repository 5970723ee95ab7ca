package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mentorbook/config"
	"mentorbook/internal/domain"
	"mentorbook/internal/repository"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SlotService answers whether a developer is free for a time range.
// A slot marker blocks only bookings whose start, floored to the granularity,
// equals the marker; it does not block the whole step.
type SlotService struct {
	db          *gorm.DB
	granularity int // minutes
	loc         *time.Location
	now         func() time.Time
	log         *zap.Logger
}

func NewSlotService(db *gorm.DB, cfg config.BookingConfig, log *zap.Logger) *SlotService {
	g := int(cfg.SlotGranularity / time.Minute)
	if g <= 0 || 24*60%g != 0 {
		g = int(domain.DefaultSlotGranularity / time.Minute)
	}
	return &SlotService{
		db:          db,
		granularity: g,
		loc:         cfg.Location(),
		now:         time.Now,
		log:         log.Named("slots"),
	}
}

// Day returns the booking-timezone calendar day of t.
func (s *SlotService) Day(t time.Time) string {
	return t.In(s.loc).Format(domain.DateLayout)
}

func (s *SlotService) Today() string {
	return s.Day(s.now())
}

// Marker floors t to the slot granularity and formats it as HH:MM.
func (s *SlotService) Marker(t time.Time) string {
	lt := t.In(s.loc)
	m := lt.Hour()*60 + lt.Minute()
	m -= m % s.granularity
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (s *SlotService) IsAvailable(ctx context.Context, developerID uint, date string, start time.Time, durationMinutes int) (bool, error) {
	return s.isAvailable(ctx, s.db, developerID, date, start, durationMinutes)
}

// isAvailable runs the check on db, which may be a transaction holding the
// developer lock.
func (s *SlotService) isAvailable(ctx context.Context, db *gorm.DB, developerID uint, date string, start time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, domain.Validation("duration must be greater than zero")
	}
	if date == "" {
		date = s.Day(start)
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	booked, err := repository.NewSessionRepository(db).ListByDeveloperDate(ctx, developerID, date, domain.SlotHoldingStatuses)
	if err != nil {
		return false, err
	}
	for i := range booked {
		if booked[i].Overlaps(start, end) {
			return false, nil
		}
	}

	blocked, err := s.effective(ctx, db, developerID, date)
	if err != nil {
		return false, err
	}
	marker := s.Marker(start)
	for _, b := range blocked {
		if b == marker {
			return false, nil
		}
	}
	return true, nil
}

// UnavailableSlots returns the sorted union of the day's markers and the
// developer's defaults.
func (s *SlotService) UnavailableSlots(ctx context.Context, developerID uint, date string) ([]string, error) {
	if _, err := s.parseDate(date); err != nil {
		return nil, err
	}
	return s.effective(ctx, s.db, developerID, date)
}

func (s *SlotService) effective(ctx context.Context, db *gorm.DB, developerID uint, date string) ([]string, error) {
	dev, err := repository.NewDeveloperRepository(db).GetByID(ctx, developerID)
	if err != nil {
		return nil, err
	}
	day, err := repository.NewSlotRepository(db).Get(ctx, developerID, date)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, m := range dev.DefaultSlots() {
		set[m] = struct{}{}
	}
	if day != nil {
		for _, m := range day.Markers() {
			set[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// SetUnavailableSlots replaces the developer's markers for one day.
func (s *SlotService) SetUnavailableSlots(ctx context.Context, developerID uint, date string, slots []string) ([]string, error) {
	if _, err := s.parseDate(date); err != nil {
		return nil, err
	}
	if date < s.Today() {
		return nil, domain.Validation("cannot set unavailability for a past date")
	}
	markers, err := s.normalize(slots)
	if err != nil {
		return nil, err
	}
	if _, err := repository.NewDeveloperRepository(s.db).GetByID(ctx, developerID); err != nil {
		return nil, err
	}
	if err := repository.NewSlotRepository(s.db).Upsert(ctx, developerID, date, markers); err != nil {
		return nil, err
	}
	return markers, nil
}

func (s *SlotService) SetDefaultUnavailableSlots(ctx context.Context, developerID uint, slots []string) ([]string, error) {
	markers, err := s.normalize(slots)
	if err != nil {
		return nil, err
	}
	devs := repository.NewDeveloperRepository(s.db)
	if _, err := devs.GetByID(ctx, developerID); err != nil {
		return nil, err
	}
	if err := devs.SetDefaultSlots(ctx, developerID, markers); err != nil {
		return nil, err
	}
	return markers, nil
}

// normalize validates HH:MM markers on the granularity grid, dedupes and sorts them.
func (s *SlotService) normalize(slots []string) ([]string, error) {
	seen := make(map[string]struct{}, len(slots))
	out := make([]string, 0, len(slots))
	for _, raw := range slots {
		t, err := time.Parse(domain.SlotLayout, raw)
		if err != nil {
			return nil, domain.Validation("invalid slot marker " + raw)
		}
		m := t.Hour()*60 + t.Minute()
		if m%s.granularity != 0 {
			return nil, domain.Validation(fmt.Sprintf("slot marker %s is not on a %d minute boundary", raw, s.granularity))
		}
		marker := t.Format(domain.SlotLayout)
		if _, dup := seen[marker]; dup {
			continue
		}
		seen[marker] = struct{}{}
		out = append(out, marker)
	}
	sort.Strings(out)
	return out, nil
}

func (s *SlotService) parseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(domain.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, domain.Validation("date must be YYYY-MM-DD")
	}
	return d, nil
}

// PrunePast deletes day records older than today.
func (s *SlotService) PrunePast(ctx context.Context, today string) (int64, error) {
	if _, err := s.parseDate(today); err != nil {
		return 0, err
	}
	return repository.NewSlotRepository(s.db).DeleteBefore(ctx, today)
}

// StartSlotPruner schedules PrunePast on spec. The caller stops the returned cron.
func (s *SlotService) StartSlotPruner(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(s.loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.PrunePast(ctx, s.Today())
		if err != nil {
			s.log.Error("prune unavailability failed", zap.Error(err))
			return
		}
		s.log.Info("pruned unavailability", zap.Int64("deleted", n))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule slot pruner: %w", err)
	}
	c.Start()
	s.log.Info("slot pruner started", zap.String("schedule", spec))
	return c, nil
}
