package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/config"
	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/notify"
	"github.com/segyhp/tontine-engine/internal/proofstore"
	"github.com/segyhp/tontine-engine/internal/repository"
	"github.com/segyhp/tontine-engine/internal/rotation"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
	"github.com/segyhp/tontine-engine/pkg/utils"
)

// TontineService owns every state transition of a tontine: its lifecycle,
// its participant registry and its payment ledger.
type TontineService struct {
	repo     repository.TontineRepository
	proofs   proofstore.Store
	notifier notifier
	logger   *zap.Logger
	config   config.BusinessConfig

	now     func() time.Time
	newRand func() (*rand.Rand, error)
}

type Option func(*TontineService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *TontineService) { s.now = now }
}

// WithRandSource replaces the generator used to draw random payout orders.
func WithRandSource(newRand func() (*rand.Rand, error)) Option {
	return func(s *TontineService) { s.newRand = newRand }
}

func NewTontineService(
	repo repository.TontineRepository,
	proofs proofstore.Store,
	emitter notify.Emitter,
	logger *zap.Logger,
	cfg config.BusinessConfig,
	opts ...Option,
) *TontineService {
	s := &TontineService{
		repo:     repo,
		proofs:   proofs,
		notifier: notifier{emitter: emitter, logger: logger},
		logger:   logger,
		config:   cfg,
		now:      time.Now,
		newRand:  rotation.NewRand,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate runs one read-modify-write of a tontine. fn works on a fresh copy;
// when the save loses a version race the whole cycle is replayed, up to
// MaxConflictRetries times. Notifications queued by fn go out only after the
// save succeeded.
func (s *TontineService) mutate(ctx context.Context, id string, fn func(t *domain.Tontine, out *outbox) error) (*domain.Tontine, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxConflictRetries; attempt++ {
		t, err := s.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		now := s.now()
		out := &outbox{tontine: t, now: now}
		if err := fn(t, out); err != nil {
			return nil, err
		}
		t.UpdatedAt = now

		err = s.repo.Save(ctx, t)
		if errors.Is(err, customError.ErrConcurrencyConflict) {
			lastErr = err
			s.logger.Debug("tontine save lost a version race, retrying",
				zap.String("tontine_id", id),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.notifier.deliver(ctx, out.items)
		return t, nil
	}
	return nil, lastErr
}

func requireInitiator(t *domain.Tontine, actorID string) error {
	if !t.IsInitiator(actorID) {
		return customError.WrapForbidden(fmt.Sprintf("only the initiator of tontine %s may do this", t.ID))
	}
	return nil
}

func requireStatus(t *domain.Tontine, status domain.TontineStatus, action string) error {
	if t.Status != status {
		return customError.WrapInvalidTransition(fmt.Sprintf("cannot %s a %s tontine", action, t.Status))
	}
	return nil
}

// checkTerms validates the schedule and capacity of a tontine.
func (s *TontineService) checkTerms(frequency domain.Frequency, customDays, paymentDay, maxParticipants int) error {
	if err := rotation.ValidateSchedule(frequency, customDays, paymentDay); err != nil {
		return err
	}
	if maxParticipants != domain.Unlimited && maxParticipants < s.minParticipants() {
		return customError.WrapValidation(fmt.Sprintf("max_participants must be 0 (unlimited) or at least %d", s.minParticipants()))
	}
	return nil
}

// Create registers a new draft tontine with a fresh invite code.
func (s *TontineService) Create(ctx context.Context, request *domain.CreateTontineRequest) (*domain.Tontine, error) {
	if err := validateStruct(request); err != nil {
		return nil, err
	}
	if err := s.checkTerms(request.Frequency, request.CustomDays, request.PaymentDay, request.MaxParticipants); err != nil {
		return nil, err
	}

	now := s.now()
	tontine := &domain.Tontine{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(request.Name),
		Description:     request.Description,
		InitiatorID:     request.InitiatorID,
		Amount:          request.Amount,
		Frequency:       request.Frequency,
		CustomDays:      request.CustomDays,
		PaymentDay:      request.PaymentDay,
		MaxParticipants: request.MaxParticipants,
		StartDate:       request.StartDate,
		Status:          domain.TontineStatusDraft,
		OrderType:       request.OrderType,
		GainType:        request.GainType,
		PackDescription: request.PackDescription,
		Participants:    []*domain.Participant{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// A conflict on insert means the invite code is taken; draw another.
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxConflictRetries; attempt++ {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return nil, err
		}
		tontine.InviteCode = code

		err = s.repo.Save(ctx, tontine)
		if errors.Is(err, customError.ErrConcurrencyConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("tontine created",
			zap.String("tontine_id", tontine.ID),
			zap.String("initiator_id", tontine.InitiatorID),
		)
		return tontine, nil
	}
	return nil, lastErr
}

func (s *TontineService) Get(ctx context.Context, id string) (*domain.Tontine, error) {
	return s.repo.Load(ctx, id)
}

func (s *TontineService) List(ctx context.Context, filter domain.TontineFilter) ([]*domain.Tontine, error) {
	return s.repo.Query(ctx, filter)
}

// Edit applies a partial update to a draft tontine.
func (s *TontineService) Edit(ctx context.Context, id, actorID string, request *domain.EditTontineRequest) (*domain.Tontine, error) {
	if err := validateStruct(request); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(t *domain.Tontine, _ *outbox) error {
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		if err := requireStatus(t, domain.TontineStatusDraft, "edit"); err != nil {
			return err
		}

		if request.Name != nil {
			name := strings.TrimSpace(*request.Name)
			if name == "" {
				return customError.WrapValidation("name is required")
			}
			t.Name = name
		}
		if request.Description != nil {
			t.Description = *request.Description
		}
		if request.Amount != nil {
			if !request.Amount.IsPositive() {
				return customError.WrapValidation("amount must be greater than 0")
			}
			t.Amount = *request.Amount
		}
		if request.Frequency != nil {
			t.Frequency = *request.Frequency
		}
		if request.CustomDays != nil {
			t.CustomDays = *request.CustomDays
		}
		if request.PaymentDay != nil {
			t.PaymentDay = *request.PaymentDay
		}
		if request.MaxParticipants != nil {
			t.MaxParticipants = *request.MaxParticipants
		}
		if request.StartDate != nil {
			if request.StartDate.IsZero() {
				return customError.WrapValidation("start_date is required")
			}
			t.StartDate = *request.StartDate
		}
		if request.OrderType != nil {
			t.OrderType = *request.OrderType
		}
		if request.GainType != nil {
			t.GainType = *request.GainType
		}
		if request.PackDescription != nil {
			t.PackDescription = *request.PackDescription
		}

		if err := s.checkTerms(t.Frequency, t.CustomDays, t.PaymentDay, t.MaxParticipants); err != nil {
			return err
		}
		if t.MaxParticipants != domain.Unlimited && len(t.Participants) > t.MaxParticipants {
			return customError.WrapValidation(fmt.Sprintf("max_participants cannot be below the %d participants already joined", len(t.Participants)))
		}
		if t.GainType == domain.GainTypePack && strings.TrimSpace(t.PackDescription) == "" {
			return customError.WrapValidation("pack_description is required")
		}
		return nil
	})
}

// Delete removes a draft tontine. The delete is conditional on the version
// that was checked, so a concurrent start replays the checks.
func (s *TontineService) Delete(ctx context.Context, id, actorID string) error {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxConflictRetries; attempt++ {
		t, err := s.repo.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		if err := requireStatus(t, domain.TontineStatusDraft, "delete"); err != nil {
			return err
		}

		err = s.repo.Delete(ctx, id, t.Version)
		if errors.Is(err, customError.ErrConcurrencyConflict) {
			lastErr = err
			s.logger.Debug("tontine delete lost a version race, retrying",
				zap.String("tontine_id", id),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return err
		}

		s.logger.Info("tontine deleted", zap.String("tontine_id", id))
		return nil
	}
	return lastErr
}

// Start fixes the payout order and opens cycle 1.
func (s *TontineService) Start(ctx context.Context, id, actorID string) (*domain.Tontine, error) {
	t, err := s.mutate(ctx, id, func(t *domain.Tontine, out *outbox) error {
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		if err := requireStatus(t, domain.TontineStatusDraft, "start"); err != nil {
			return err
		}
		if len(t.Participants) < s.minParticipants() {
			return customError.WrapInvalidTransition(fmt.Sprintf("a tontine needs at least %d participants to start, it has %d", s.minParticipants(), len(t.Participants)))
		}

		var rng *rand.Rand
		if t.OrderType == domain.OrderTypeRandom {
			r, err := s.newRand()
			if err != nil {
				return err
			}
			rng = r
		}
		ordered, err := rotation.AssignPositions(t.Participants, t.OrderType, rng)
		if err != nil {
			return err
		}

		t.Participants = ordered
		t.CurrentCycle = 1
		t.Status = domain.TontineStatusActive
		started := out.now
		t.StartedAt = &started

		beneficiary := t.Beneficiary()
		out.broadcast(domain.NotificationTontineStarted,
			"Tontine started",
			fmt.Sprintf("%s has started. %s receives the first payout.", t.Name, beneficiary.Name),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tontine started",
		zap.String("tontine_id", t.ID),
		zap.Int("participants", len(t.Participants)),
		zap.String("order_type", string(t.OrderType)),
	)
	return t, nil
}

func (s *TontineService) Suspend(ctx context.Context, id, actorID string) (*domain.Tontine, error) {
	return s.mutate(ctx, id, func(t *domain.Tontine, _ *outbox) error {
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		if err := requireStatus(t, domain.TontineStatusActive, "suspend"); err != nil {
			return err
		}
		t.Status = domain.TontineStatusSuspended
		return nil
	})
}

func (s *TontineService) Resume(ctx context.Context, id, actorID string) (*domain.Tontine, error) {
	return s.mutate(ctx, id, func(t *domain.Tontine, _ *outbox) error {
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		if err := requireStatus(t, domain.TontineStatusSuspended, "resume"); err != nil {
			return err
		}
		t.Status = domain.TontineStatusActive
		return nil
	})
}

// AdvanceCycle pays out the current beneficiary and moves to the next cycle,
// completing the tontine after the last one.
func (s *TontineService) AdvanceCycle(ctx context.Context, id, actorID string) (*domain.Tontine, error) {
	t, err := s.mutate(ctx, id, func(t *domain.Tontine, out *outbox) error {
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		return s.advance(t, out)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tontine cycle advanced",
		zap.String("tontine_id", t.ID),
		zap.Int("cycle", t.CurrentCycle),
		zap.String("status", string(t.Status)),
	)
	return t, nil
}

// advance requires every non-beneficiary contribution of the current cycle to
// be confirmed.
func (s *TontineService) advance(t *domain.Tontine, out *outbox) error {
	if err := requireStatus(t, domain.TontineStatusActive, "advance"); err != nil {
		return err
	}
	if n := t.UnsettledCount(); n > 0 {
		return customError.WrapCycleNotSettled(t.CurrentCycle, n)
	}

	if b := t.Beneficiary(); b != nil {
		b.HasReceivedPayout = true
	}
	t.CurrentCycle++

	if t.CurrentCycle > len(t.Participants) {
		t.Status = domain.TontineStatusCompleted
		completed := out.now
		t.CompletedAt = &completed
		out.broadcast(domain.NotificationTontineCompleted,
			"Tontine completed",
			fmt.Sprintf("%s is complete: every participant has received a payout.", t.Name),
		)
		return nil
	}

	next := t.Beneficiary()
	out.add(next.UserID, domain.NotificationPayoutReady,
		"Your payout cycle has begun",
		fmt.Sprintf("You are the beneficiary of cycle %d of %s.", t.CurrentCycle, t.Name),
	)
	return nil
}

// minParticipants is the configured floor, never below the two members a
// rotation needs.
func (s *TontineService) minParticipants() int {
	return max(s.config.MinParticipants, 2)
}
