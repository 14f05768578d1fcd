package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/notify"
	"github.com/segyhp/tontine-engine/internal/repository"
	"github.com/segyhp/tontine-engine/pkg/utils"
)

const reminderTTL = 24 * time.Hour

// ReminderService sends payment_due notifications. It only reads tontines.
type ReminderService struct {
	repo     repository.TontineRepository
	gate     notify.Gate
	notifier notifier
	logger   *zap.Logger
	leadDays int
}

func NewReminderService(repo repository.TontineRepository, emitter notify.Emitter, gate notify.Gate, logger *zap.Logger, leadDays int) *ReminderService {
	return &ReminderService{
		repo:     repo,
		gate:     gate,
		notifier: notifier{emitter: emitter, logger: logger},
		logger:   logger,
		leadDays: leadDays,
	}
}

// SendPaymentReminders notifies every participant of an active tontine who
// still owes the current cycle and whose due date is within the lead window
// or already past. Each participant is reminded at most once per cycle per
// day. It returns the number of reminders sent.
func (s *ReminderService) SendPaymentReminders(ctx context.Context, now time.Time) (int, error) {
	tontines, err := s.repo.Query(ctx, domain.TontineFilter{Status: domain.TontineStatusActive})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, t := range tontines {
		due, err := dueDate(t, t.CurrentCycle)
		if err != nil {
			s.logger.Error("cannot compute due date", zap.String("tontine_id", t.ID), zap.Error(err))
			continue
		}
		if now.Before(due.AddDate(0, 0, -s.leadDays)) {
			continue
		}

		out := &outbox{tontine: t, now: now}
		for _, p := range t.Participants {
			if p.Position == t.CurrentCycle {
				continue
			}
			pay := p.PaymentForCycle(t.CurrentCycle)
			status := pay.EffectiveStatus()
			if status != domain.PaymentStatusPending && status != domain.PaymentStatusRejected {
				continue
			}

			key := fmt.Sprintf("reminder:%s:%s:%d:%s", t.ID, p.ID, t.CurrentCycle, now.Format(time.DateOnly))
			ok, err := s.gate.Acquire(ctx, key, reminderTTL)
			if err != nil {
				s.logger.Warn("reminder gate unavailable", zap.String("key", key), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			title := "Payment due soon"
			if domain.IsOverdue(pay, due, now) {
				title = "Payment overdue"
			}
			out.add(p.UserID, domain.NotificationPaymentDue, title,
				fmt.Sprintf("Your %s contribution for cycle %d of %s is due on %s.",
					utils.FormatCurrency(t.Amount), t.CurrentCycle, t.Name, due.Format(time.DateOnly)),
			)
		}

		s.notifier.deliver(ctx, out.items)
		sent += len(out.items)
	}

	s.logger.Info("payment reminders sent", zap.Int("count", sent), zap.Int("active_tontines", len(tontines)))
	return sent, nil
}
