// Package reports builds the daily staff digests from property system
// bookings: the morning prepayment call list and today's check-ins.
package reports

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/wolfman30/guesthub/internal/notify"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const defaultProperty = "DREWNO"

var checkinStatuses = []string{"confirmed", "paid", "awaiting_checkin"}

// Source lists bookings from the property system.
type Source interface {
	BookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]pms.Booking, error)
	BookingsByArrival(ctx context.Context, date time.Time) ([]pms.Booking, error)
}

// Notifier delivers a rendered digest.
type Notifier interface {
	Deliver(ctx context.Context, d notify.Digest) error
}

// Config addresses the digests.
type Config struct {
	Property       string
	AdminChatID    string
	CheckinsChatID string
	Location       *time.Location
}

// Service renders and sends the daily digests.
type Service struct {
	source   Source
	notifier Notifier
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates a report service. A nil location means UTC.
func NewService(source Source, notifier Notifier, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Property == "" {
		cfg.Property = defaultProperty
	}
	return &Service{
		source:   source,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Component("reports"),
		now:      time.Now,
	}
}

// SendMorningTasks posts yesterday's bookings that are not fully prepaid to
// the admin chat.
func (s *Service) SendMorningTasks(ctx context.Context) error {
	from, to := s.yesterday()
	label := dayMonthLabel(from)

	bookings, err := s.source.BookingsCreatedBetween(ctx, from, to)
	if err != nil {
		s.logger.Error("failed to fetch yesterday's bookings", "error", err)
		return fmt.Errorf("reports: morning tasks: %w", err)
	}
	tasks := MorningTasks(bookings)

	text := FormatMorningTasks(s.cfg.Property, tasks, label)
	err = s.notifier.Deliver(ctx, notify.Digest{
		ChatID:  s.cfg.AdminChatID,
		Subject: fmt.Sprintf("Утренние задачи %s за %s", s.cfg.Property, label),
		Text:    text,
	})
	if err != nil {
		s.logger.Error("failed to send morning tasks report", "error", err)
		return fmt.Errorf("reports: send morning tasks: %w", err)
	}
	s.logger.Info("morning tasks report sent", "bookings", len(bookings), "tasks", len(tasks), "label", label)
	return nil
}

// SendTodayCheckins posts today's arrivals to the check-ins chat.
func (s *Service) SendTodayCheckins(ctx context.Context) error {
	today := s.today()
	label := dayMonthLabel(today)

	bookings, err := s.source.BookingsByArrival(ctx, today)
	if err != nil {
		s.logger.Error("failed to fetch today's arrivals", "error", err)
		return fmt.Errorf("reports: today checkins: %w", err)
	}
	arrivals := Checkins(bookings)

	err = s.notifier.Deliver(ctx, notify.Digest{
		ChatID:  s.cfg.CheckinsChatID,
		Subject: fmt.Sprintf("Заселения на сегодня (%s)", label),
		Text:    FormatTodayCheckins(arrivals, label),
	})
	if err != nil {
		s.logger.Error("failed to send check-ins report", "error", err)
		return fmt.Errorf("reports: send checkins: %w", err)
	}
	s.logger.Info("check-ins report sent", "arrivals", len(arrivals), "label", label)
	return nil
}

// MorningTasks keeps bookings with no total or a prepayment below the total.
func MorningTasks(bookings []pms.Booking) []pms.Booking {
	var out []pms.Booking
	for _, b := range bookings {
		if b.TotalAmount == 0 || b.PrepaymentAmount < b.TotalAmount {
			out = append(out, b)
		}
	}
	return out
}

// Checkins keeps bookings whose status is unset or one of the arrival states.
func Checkins(bookings []pms.Booking) []pms.Booking {
	var out []pms.Booking
	for _, b := range bookings {
		if b.Status == "" || slices.Contains(checkinStatuses, b.Status) {
			out = append(out, b)
		}
	}
	return out
}

func (s *Service) today() time.Time {
	now := s.now().In(s.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
}

// yesterday spans the previous local calendar day, inclusive of its last
// millisecond.
func (s *Service) yesterday() (time.Time, time.Time) {
	start := s.today().AddDate(0, 0, -1)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}
