package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TontineStatus string

const (
	TontineStatusDraft     TontineStatus = "draft"
	TontineStatusActive    TontineStatus = "active"
	TontineStatusSuspended TontineStatus = "suspended"
	TontineStatusCompleted TontineStatus = "completed"
)

type OrderType string

const (
	OrderTypeManual OrderType = "manual"
	OrderTypeRandom OrderType = "random"
)

type GainType string

const (
	GainTypeMoney GainType = "money"
	GainTypePack  GainType = "pack"
)

// Unlimited is the MaxParticipants value for a tontine without a cap.
const Unlimited = 0

// Tontine is the aggregate root. Participants and their payment history are
// only ever persisted together with it.
type Tontine struct {
	ID              string          `json:"id" bson:"_id"`
	Name            string          `json:"name" bson:"name"`
	Description     string          `json:"description,omitempty" bson:"description,omitempty"`
	InitiatorID     string          `json:"initiator_id" bson:"initiator_id"`
	InviteCode      string          `json:"invite_code" bson:"invite_code"`
	Amount          decimal.Decimal `json:"amount" bson:"amount"`
	Frequency       Frequency       `json:"frequency" bson:"frequency"`
	CustomDays      int             `json:"custom_days,omitempty" bson:"custom_days,omitempty"`
	PaymentDay      int             `json:"payment_day,omitempty" bson:"payment_day,omitempty"`
	MaxParticipants int             `json:"max_participants" bson:"max_participants"`
	StartDate       time.Time       `json:"start_date" bson:"start_date"`
	CurrentCycle    int             `json:"current_cycle" bson:"current_cycle"`
	Status          TontineStatus   `json:"status" bson:"status"`
	OrderType       OrderType       `json:"order_type" bson:"order_type"`
	GainType        GainType        `json:"gain_type" bson:"gain_type"`
	PackDescription string          `json:"pack_description,omitempty" bson:"pack_description,omitempty"`
	Participants    []*Participant  `json:"participants" bson:"participants"`
	Version         int64           `json:"version" bson:"version"`
	CreatedAt       time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" bson:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Participant is a member of a tontine's rotation.
type Participant struct {
	ID                string     `json:"id" bson:"id"`
	UserID            string     `json:"user_id" bson:"user_id"`
	Name              string     `json:"name" bson:"name"`
	Email             string     `json:"email,omitempty" bson:"email,omitempty"`
	Phone             string     `json:"phone,omitempty" bson:"phone,omitempty"`
	Position          int        `json:"position" bson:"position"`
	HasReceivedPayout bool       `json:"has_received_payout" bson:"has_received_payout"`
	JoinedAt          time.Time  `json:"joined_at" bson:"joined_at"`
	PaymentHistory    []*Payment `json:"payment_history" bson:"payment_history"`
}

// ParticipantByID returns the participant with the given id, or nil.
func (t *Tontine) ParticipantByID(id string) *Participant {
	for _, p := range t.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ParticipantByUserID returns the participant owned by userID, or nil.
func (t *Tontine) ParticipantByUserID(userID string) *Participant {
	for _, p := range t.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Beneficiary returns the participant whose position matches the current
// cycle. It is nil outside of an active or suspended rotation.
func (t *Tontine) Beneficiary() *Participant {
	if t.CurrentCycle < 1 {
		return nil
	}
	for _, p := range t.Participants {
		if p.Position == t.CurrentCycle {
			return p
		}
	}
	return nil
}

// IsFull reports whether no more participants may join.
func (t *Tontine) IsFull() bool {
	return t.MaxParticipants != Unlimited && len(t.Participants) >= t.MaxParticipants
}

// IsInitiator reports whether userID created the tontine.
func (t *Tontine) IsInitiator(userID string) bool {
	return userID != "" && t.InitiatorID == userID
}

// UnsettledCount returns how many non-beneficiary participants have not yet
// had their payment for the current cycle confirmed.
func (t *Tontine) UnsettledCount() int {
	n := 0
	for _, p := range t.Participants {
		if p.Position == t.CurrentCycle {
			continue
		}
		pay := p.PaymentForCycle(t.CurrentCycle)
		if pay == nil || pay.Status != PaymentStatusConfirmed {
			n++
		}
	}
	return n
}

// PaymentForCycle returns the participant's payment for cycle, or nil when
// none has been materialized yet.
func (p *Participant) PaymentForCycle(cycle int) *Payment {
	for _, pay := range p.PaymentHistory {
		if pay.Cycle == cycle {
			return pay
		}
	}
	return nil
}

// TontineFilter narrows QueryTontines. Zero fields are ignored.
type TontineFilter struct {
	InitiatorID       string
	ParticipantUserID string
	InviteCode        string
	Status            TontineStatus
}
