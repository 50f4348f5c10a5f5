package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/notify"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
	"github.com/google/uuid"
)

const (
	titleHostExpired      = "Host expired"
	titleHostExpiresSoon  = "Host expires soon"
	titleCriticalIncrease = "Critical services increased"
)

// NotificationService stores in-app notifications and runs the periodic
// host checks: upcoming expirations and increases in critical services.
type NotificationService struct {
	store       storage.Storage
	state       storage.CriticalStateStore
	live        *LiveInfoService
	notifier    notify.Notifier
	warningDays int
	logger      *slog.Logger
	now         func() time.Time
}

// NewNotificationService creates a NotificationService. Critical service
// counts are remembered in state between runs.
func NewNotificationService(store storage.Storage, state storage.CriticalStateStore, live *LiveInfoService, notifier notify.Notifier, warningDays int, logger *slog.Logger) *NotificationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &NotificationService{
		store:       store,
		state:       state,
		live:        live,
		notifier:    notifier,
		warningDays: warningDays,
		logger:      logger.With("component", "notifications"),
		now:         time.Now,
	}
}

// Send stores a notification for the recipient and forwards it to the
// external notifier. Forwarding failures are logged only.
func (s *NotificationService) Send(ctx context.Context, email, hostName, title, message string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.New().String(),
		UserEmail: email,
		HostName:  hostName,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("storing notification: %w", err)
	}

	msg := notify.Message{Recipient: email, HostName: hostName, Title: title, Text: message}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("forwarding notification failed", "recipient", email, "error", err)
	}
	return n, nil
}

// List returns the notifications of email, newest first.
func (s *NotificationService) List(ctx context.Context, email string, unreadOnly bool) ([]*domain.Notification, error) {
	return s.store.ListNotifications(ctx, email, unreadOnly)
}

// MarkRead marks a notification of email as read.
func (s *NotificationService) MarkRead(ctx context.Context, email, id string) error {
	return s.store.MarkNotificationRead(ctx, email, id)
}

// CheckExpirations notifies owners of hosts that expired or expire within
// the warning period. Each host is reported at most once per day.
func (s *NotificationService) CheckExpirations(ctx context.Context) (int, error) {
	hosts, err := s.store.ListHosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing hosts: %w", err)
	}

	today := truncateDay(s.now())
	sent := 0
	for _, h := range hosts {
		if h.OwnerEmail == "" {
			continue
		}
		exp, ok := h.Expiration()
		if !ok {
			continue
		}

		days := int(exp.Sub(today).Hours() / 24)
		var title, msg string
		switch {
		case days < 0:
			title = titleHostExpired
			msg = fmt.Sprintf("Host %s expired on %s.", h.Name, h.ExpirationDate)
		case days <= s.warningDays:
			title = titleHostExpiresSoon
			msg = fmt.Sprintf("Host %s expires on %s (in %d days).", h.Name, h.ExpirationDate, days)
		default:
			continue
		}

		dup, err := s.sentToday(ctx, h.OwnerEmail, h.Name, title, today)
		if err != nil {
			return sent, err
		}
		if dup {
			continue
		}
		if _, err := s.Send(ctx, h.OwnerEmail, h.Name, title, msg); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// CheckCriticalServices compares the number of critical services per host
// with the previous run and notifies owners about increases.
func (s *NotificationService) CheckCriticalServices(ctx context.Context) (int, error) {
	infos, err := s.live.All(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, info := range infos {
		count, err := strconv.Atoi(strings.TrimSpace(info.ServicesCrit))
		if err != nil {
			continue
		}

		prev, seen, err := s.state.GetCriticalCount(ctx, info.HostName)
		if err != nil {
			return sent, fmt.Errorf("reading critical count: %w", err)
		}
		if err := s.state.SetCriticalCount(ctx, info.HostName, count); err != nil {
			return sent, fmt.Errorf("saving critical count: %w", err)
		}
		if !seen || count <= prev {
			continue
		}

		host, err := s.store.GetHost(ctx, info.HostName)
		if err != nil || host.OwnerEmail == "" {
			continue
		}
		msg := fmt.Sprintf("Host %s now has %d critical services (was %d).", host.Name, count, prev)
		if _, err := s.Send(ctx, host.OwnerEmail, host.Name, titleCriticalIncrease, msg); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// RunOnce runs both checks and logs their outcome.
func (s *NotificationService) RunOnce(ctx context.Context) {
	if n, err := s.CheckExpirations(ctx); err != nil {
		s.logger.Error("expiration check failed", "error", err)
	} else if n > 0 {
		s.logger.Info("expiration notifications sent", "count", n)
	}
	if n, err := s.CheckCriticalServices(ctx); err != nil {
		s.logger.Error("critical service check failed", "error", err)
	} else if n > 0 {
		s.logger.Info("critical service notifications sent", "count", n)
	}
}

// Run executes the checks immediately and then every interval until ctx is
// done.
func (s *NotificationService) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *NotificationService) sentToday(ctx context.Context, email, host, title string, today time.Time) (bool, error) {
	existing, err := s.store.ListNotifications(ctx, email, false)
	if err != nil {
		return false, fmt.Errorf("listing notifications: %w", err)
	}
	for _, n := range existing {
		if n.HostName == host && n.Title == title && !n.CreatedAt.Before(today) {
			return true, nil
		}
	}
	return false, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
