package domain

import (
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// DTOs for requests and responses

type CreateTontineRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Description     string          `json:"description" validate:"max=1000"`
	InitiatorID     string          `json:"initiator_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Frequency       Frequency       `json:"frequency" validate:"required,oneof=daily weekly monthly custom"`
	CustomDays      int             `json:"custom_days" validate:"gte=0"`
	PaymentDay      int             `json:"payment_day" validate:"gte=0,lte=31"`
	MaxParticipants int             `json:"max_participants" validate:"gte=0"`
	StartDate       time.Time       `json:"start_date" validate:"required"`
	OrderType       OrderType       `json:"order_type" validate:"required,oneof=manual random"`
	GainType        GainType        `json:"gain_type" validate:"required,oneof=money pack"`
	PackDescription string          `json:"pack_description" validate:"required_if=GainType pack"`
}

// EditTontineRequest carries a partial update; nil fields are left untouched.
type EditTontineRequest struct {
	Name            *string          `json:"name" validate:"omitempty,min=1,max=120"`
	Description     *string          `json:"description" validate:"omitempty,max=1000"`
	Amount          *decimal.Decimal `json:"amount"`
	Frequency       *Frequency       `json:"frequency" validate:"omitempty,oneof=daily weekly monthly custom"`
	CustomDays      *int             `json:"custom_days" validate:"omitempty,gte=0"`
	PaymentDay      *int             `json:"payment_day" validate:"omitempty,gte=0,lte=31"`
	MaxParticipants *int             `json:"max_participants" validate:"omitempty,gte=0"`
	StartDate       *time.Time       `json:"start_date"`
	OrderType       *OrderType       `json:"order_type" validate:"omitempty,oneof=manual random"`
	GainType        *GainType        `json:"gain_type" validate:"omitempty,oneof=money pack"`
	PackDescription *string          `json:"pack_description"`
}

type JoinRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"required,max=120"`
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone" validate:"omitempty,max=32"`
}

type JoinByCodeRequest struct {
	InviteCode string `json:"invite_code" validate:"required,alphanum,len=6"`
	JoinRequest
}

type ReorderRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required"`
}

type RejectPaymentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ProofFile is an uploaded proof document. The engine never reads Content;
// it is handed as-is to the proof storage.
type ProofFile struct {
	Name        string    `validate:"required"`
	ContentType string    `validate:"required,oneof=image/jpeg image/jpg image/png application/pdf"`
	Size        int64     `validate:"gt=0"`
	Content     io.Reader `validate:"required"`
}

type MarkPaidRequest struct {
	File     ProofFile
	Transfer TransferDetails
}
