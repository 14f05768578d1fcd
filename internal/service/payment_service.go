package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/rotation"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
	"github.com/segyhp/tontine-engine/pkg/utils"
)

// dueDate returns the due date of a cycle of t.
func dueDate(t *domain.Tontine, cycle int) (time.Time, error) {
	return rotation.NextDueDate(t.StartDate, t.Frequency, t.CustomDays, cycle, t.PaymentDay)
}

// payer resolves the participant owing a contribution in the current cycle
// and checks that actorID may act for them.
func payer(t *domain.Tontine, participantID, actorID string) (*domain.Participant, error) {
	if err := requireStatus(t, domain.TontineStatusActive, "pay into"); err != nil {
		return nil, err
	}
	p := t.ParticipantByID(participantID)
	if p == nil {
		return nil, customError.WrapParticipantNotFound(participantID)
	}
	if p.UserID != actorID {
		return nil, customError.WrapForbidden("participants can only mark their own payments")
	}
	if p.Position == t.CurrentCycle {
		return nil, customError.WrapInvalidTransition(fmt.Sprintf("participant %s is the beneficiary of cycle %d and owes no contribution", p.ID, t.CurrentCycle))
	}
	if pay := p.PaymentForCycle(t.CurrentCycle); pay != nil {
		switch pay.Status {
		case domain.PaymentStatusPending, domain.PaymentStatusRejected:
		default:
			return nil, customError.WrapPaymentAlreadyMade(p.ID, t.CurrentCycle, string(pay.Status))
		}
	}
	return p, nil
}

// MarkPaid records a participant's claim that they paid the current cycle.
// The proof is stored before the ledger changes; a storage failure leaves the
// tontine untouched.
func (s *TontineService) MarkPaid(ctx context.Context, tontineID, participantID, actorID string, request *domain.MarkPaidRequest) (*domain.Payment, error) {
	if err := validateStruct(request); err != nil {
		return nil, err
	}

	current, err := s.repo.Load(ctx, tontineID)
	if err != nil {
		return nil, err
	}
	if _, err := payer(current, participantID, actorID); err != nil {
		return nil, err
	}

	ref, err := s.proofs.Put(ctx, tontineID, request.File)
	if err != nil {
		var be *customError.BusinessError
		if !errors.As(err, &be) {
			err = customError.WrapProofStorageError(err)
		}
		return nil, err
	}

	var payment *domain.Payment
	t, err := s.mutate(ctx, tontineID, func(t *domain.Tontine, out *outbox) error {
		p, err := payer(t, participantID, actorID)
		if err != nil {
			return err
		}

		pay := p.PaymentForCycle(t.CurrentCycle)
		if pay == nil {
			due, err := dueDate(t, t.CurrentCycle)
			if err != nil {
				return err
			}
			pay = &domain.Payment{
				ID:            uuid.NewString(),
				ParticipantID: p.ID,
				TontineID:     t.ID,
				Cycle:         t.CurrentCycle,
				Amount:        t.Amount,
				DueDate:       due,
				Status:        domain.PaymentStatusPending,
				AuditLog:      []domain.AuditEntry{},
			}
			p.PaymentHistory = append(p.PaymentHistory, pay)
		}

		proof := &domain.PaymentProof{
			FileRef:    ref,
			FileName:   request.File.Name,
			FileType:   request.File.ContentType,
			UploadedAt: out.now,
			Transfer:   request.Transfer,
		}
		if err := pay.Submit(actorID, proof, out.now); err != nil {
			return err
		}
		payment = pay

		out.add(t.InitiatorID, domain.NotificationPaymentReceived,
			"Payment to validate",
			fmt.Sprintf("%s marked their %s contribution for cycle %d of %s as paid.", p.Name, utils.FormatCurrency(t.Amount), t.CurrentCycle, t.Name),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment marked as paid",
		zap.String("tontine_id", t.ID),
		zap.String("participant_id", participantID),
		zap.Int("cycle", payment.Cycle),
	)
	return payment, nil
}

// Validate confirms a submitted payment. When AutoAdvanceCycle is set and this
// confirmation settles the cycle, the cycle advances in the same write.
func (s *TontineService) Validate(ctx context.Context, tontineID, participantID, actorID string) (*domain.Payment, error) {
	var payment *domain.Payment
	t, err := s.mutate(ctx, tontineID, func(t *domain.Tontine, out *outbox) error {
		p, pay, err := s.submitted(t, participantID, actorID)
		if err != nil {
			return err
		}
		if pay == nil {
			return customError.WrapNoPendingPayment(participantID, t.CurrentCycle)
		}
		if err := pay.Validate(actorID, out.now); err != nil {
			return err
		}
		payment = pay

		out.add(p.UserID, domain.NotificationPaymentValidated,
			"Payment confirmed",
			fmt.Sprintf("Your contribution for cycle %d of %s was confirmed.", pay.Cycle, t.Name),
		)

		if s.config.AutoAdvanceCycle && t.UnsettledCount() == 0 {
			return s.advance(t, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment validated",
		zap.String("tontine_id", t.ID),
		zap.String("participant_id", participantID),
		zap.Int("cycle", payment.Cycle),
		zap.Int("current_cycle", t.CurrentCycle),
	)
	return payment, nil
}

// Reject refuses a submitted payment with a mandatory reason. The participant
// may submit again.
func (s *TontineService) Reject(ctx context.Context, tontineID, participantID, actorID, reason string) (*domain.Payment, error) {
	var payment *domain.Payment
	t, err := s.mutate(ctx, tontineID, func(t *domain.Tontine, out *outbox) error {
		p, pay, err := s.submitted(t, participantID, actorID)
		if err != nil {
			return err
		}
		if pay == nil {
			// Not stored: only reports the reason or state error.
			pay = &domain.Payment{ParticipantID: participantID, Cycle: t.CurrentCycle}
		}
		if err := pay.Reject(actorID, reason, out.now); err != nil {
			return err
		}
		payment = pay

		out.add(p.UserID, domain.NotificationPaymentRejected,
			"Payment rejected",
			fmt.Sprintf("Your contribution for cycle %d of %s was rejected: %s", pay.Cycle, t.Name, pay.RejectionReason),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment rejected",
		zap.String("tontine_id", t.ID),
		zap.String("participant_id", participantID),
		zap.Int("cycle", payment.Cycle),
	)
	return payment, nil
}

// submitted resolves the participant and their current-cycle payment for an
// initiator decision. The payment is nil when none was recorded yet.
func (s *TontineService) submitted(t *domain.Tontine, participantID, actorID string) (*domain.Participant, *domain.Payment, error) {
	if err := requireInitiator(t, actorID); err != nil {
		return nil, nil, err
	}
	if err := requireStatus(t, domain.TontineStatusActive, "review payments of"); err != nil {
		return nil, nil, err
	}
	p := t.ParticipantByID(participantID)
	if p == nil {
		return nil, nil, customError.WrapParticipantNotFound(participantID)
	}
	return p, p.PaymentForCycle(t.CurrentCycle), nil
}

// CycleStatement reports every participant's obligation for the current
// cycle with overdue derived against the clock.
func (s *TontineService) CycleStatement(ctx context.Context, tontineID string) (*domain.CycleStatement, error) {
	t, err := s.repo.Load(ctx, tontineID)
	if err != nil {
		return nil, err
	}
	if t.CurrentCycle < 1 {
		return nil, customError.WrapInvalidTransition(fmt.Sprintf("tontine %s has not started", t.ID))
	}

	// A completed tontine reports its last cycle.
	cycle := min(t.CurrentCycle, len(t.Participants))
	due, err := dueDate(t, cycle)
	if err != nil {
		return nil, err
	}

	now := s.now()
	statement := &domain.CycleStatement{
		TontineID: t.ID,
		Cycle:     cycle,
		DueDate:   due,
		Entries:   make([]*domain.CycleEntry, 0, len(t.Participants)),
		Settled:   true,
	}

	participants := append([]*domain.Participant(nil), t.Participants...)
	sort.SliceStable(participants, func(i, j int) bool { return participants[i].Position < participants[j].Position })

	for _, p := range participants {
		entry := &domain.CycleEntry{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Name:          p.Name,
			Position:      p.Position,
			IsBeneficiary: p.Position == cycle,
			DueDate:       due,
		}
		if entry.IsBeneficiary {
			statement.BeneficiaryID = p.ID
		} else {
			pay := p.PaymentForCycle(cycle)
			entry.Payment = pay
			entry.Status = domain.DerivedStatus(pay, due, now)
			if entry.Status != domain.PaymentStatusConfirmed {
				statement.Settled = false
			}
		}
		statement.Entries = append(statement.Entries, entry)
	}

	return statement, nil
}

// PaymentHistory returns a participant's payments ordered by cycle.
func (s *TontineService) PaymentHistory(ctx context.Context, tontineID, participantID string) ([]*domain.Payment, error) {
	t, err := s.repo.Load(ctx, tontineID)
	if err != nil {
		return nil, err
	}
	p := t.ParticipantByID(participantID)
	if p == nil {
		return nil, customError.WrapParticipantNotFound(participantID)
	}

	history := append([]*domain.Payment{}, p.PaymentHistory...)
	sort.Slice(history, func(i, j int) bool { return history[i].Cycle < history[j].Cycle })
	return history, nil
}
