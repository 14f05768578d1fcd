package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/rotation"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
	"github.com/segyhp/tontine-engine/pkg/utils"
)

// Join adds a participant to a draft tontine. A user may join on their own
// behalf, or the initiator may add them.
func (s *TontineService) Join(ctx context.Context, tontineID, actorID string, request *domain.JoinRequest) (*domain.Tontine, error) {
	if err := validateStruct(request); err != nil {
		return nil, err
	}

	t, err := s.mutate(ctx, tontineID, func(t *domain.Tontine, out *outbox) error {
		if actorID != request.UserID && !t.IsInitiator(actorID) {
			return customError.WrapForbidden("participants can only join on their own behalf")
		}
		return addParticipant(t, request, out.now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant joined",
		zap.String("tontine_id", t.ID),
		zap.String("user_id", request.UserID),
		zap.Int("participants", len(t.Participants)),
	)
	return t, nil
}

// JoinByInviteCode resolves a case-insensitive invite code and joins the
// actor to that tontine.
func (s *TontineService) JoinByInviteCode(ctx context.Context, actorID string, request *domain.JoinByCodeRequest) (*domain.Tontine, error) {
	request.InviteCode = utils.NormalizeInviteCode(request.InviteCode)
	if err := validateStruct(request); err != nil {
		return nil, err
	}
	if actorID != request.UserID {
		return nil, customError.WrapForbidden("participants can only join on their own behalf")
	}

	matches, err := s.repo.Query(ctx, domain.TontineFilter{InviteCode: request.InviteCode})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, customError.NewBusinessError(
			customError.ErrCodeTontineNotFound,
			fmt.Sprintf("No tontine uses invite code %s", request.InviteCode),
			customError.ErrTontineNotFound,
		)
	}

	return s.Join(ctx, matches[0].ID, actorID, &request.JoinRequest)
}

func addParticipant(t *domain.Tontine, request *domain.JoinRequest, now time.Time) error {
	if err := requireStatus(t, domain.TontineStatusDraft, "join"); err != nil {
		return err
	}
	if t.IsFull() {
		return customError.WrapTontineFull(t.ID, t.MaxParticipants)
	}
	if t.ParticipantByUserID(request.UserID) != nil {
		return customError.WrapAlreadyParticipant(request.UserID)
	}

	t.Participants = append(t.Participants, &domain.Participant{
		ID:             uuid.NewString(),
		UserID:         request.UserID,
		Name:           strings.TrimSpace(request.Name),
		Email:          request.Email,
		Phone:          request.Phone,
		Position:       len(t.Participants) + 1,
		JoinedAt:       now,
		PaymentHistory: []*domain.Payment{},
	})
	return nil
}

// Remove drops a participant from a draft tontine and closes the gap in the
// payout order. The initiator may remove anyone; a participant may leave.
func (s *TontineService) Remove(ctx context.Context, tontineID, participantID, actorID string) (*domain.Tontine, error) {
	return s.mutate(ctx, tontineID, func(t *domain.Tontine, _ *outbox) error {
		p := t.ParticipantByID(participantID)
		if p == nil {
			return customError.WrapParticipantNotFound(participantID)
		}
		if !t.IsInitiator(actorID) && p.UserID != actorID {
			return customError.WrapForbidden("only the initiator or the participant may remove a participant")
		}
		if err := requireStatus(t, domain.TontineStatusDraft, "leave"); err != nil {
			return err
		}

		remaining := make([]*domain.Participant, 0, len(t.Participants)-1)
		for _, other := range t.Participants {
			if other.ID != participantID {
				remaining = append(remaining, other)
			}
		}
		t.Participants = rotation.Renumber(remaining)
		return nil
	})
}

// Reorder sets the manual payout order of a draft tontine.
func (s *TontineService) Reorder(ctx context.Context, tontineID, actorID string, request *domain.ReorderRequest) (*domain.Tontine, error) {
	if err := validateStruct(request); err != nil {
		return nil, err
	}

	return s.mutate(ctx, tontineID, func(t *domain.Tontine, _ *outbox) error {
		if err := requireInitiator(t, actorID); err != nil {
			return err
		}
		if err := requireStatus(t, domain.TontineStatusDraft, "reorder"); err != nil {
			return err
		}

		ordered, err := rotation.Reorder(t.Participants, request.ParticipantIDs)
		if err != nil {
			return err
		}
		t.Participants = ordered
		return nil
	})
}
