package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "pending"
	PaymentStatusParticipantPaid PaymentStatus = "participant_paid"
	PaymentStatusConfirmed       PaymentStatus = "confirmed"
	PaymentStatusRejected        PaymentStatus = "rejected"

	// PaymentStatusOverdue only appears in derived views.
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// Audit actions
const (
	AuditParticipantMarkedPaid = "participant_marked_paid"
	AuditInitiatorValidated    = "initiator_validated"
	AuditInitiatorRejected     = "initiator_rejected"
)

// Payment is one participant's contribution for one cycle.
type Payment struct {
	ID              string          `json:"id" bson:"id"`
	ParticipantID   string          `json:"participant_id" bson:"participant_id"`
	TontineID       string          `json:"tontine_id" bson:"tontine_id"`
	Cycle           int             `json:"cycle" bson:"cycle"`
	Amount          decimal.Decimal `json:"amount" bson:"amount"`
	DueDate         time.Time       `json:"due_date" bson:"due_date"`
	PaidDate        *time.Time      `json:"paid_date,omitempty" bson:"paid_date,omitempty"`
	Status          PaymentStatus   `json:"status" bson:"status"`
	Proof           *PaymentProof   `json:"payment_proof,omitempty" bson:"payment_proof,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	ValidatedBy     string          `json:"validated_by,omitempty" bson:"validated_by,omitempty"`
	ValidatedAt     *time.Time      `json:"validated_at,omitempty" bson:"validated_at,omitempty"`
	AuditLog        []AuditEntry    `json:"audit_log" bson:"audit_log"`
}

// PaymentProof is the evidence a participant attaches to a payment claim.
type PaymentProof struct {
	FileRef    string          `json:"file_ref" bson:"file_ref"`
	FileName   string          `json:"file_name" bson:"file_name"`
	FileType   string          `json:"file_type" bson:"file_type"`
	UploadedAt time.Time       `json:"uploaded_at" bson:"uploaded_at"`
	Transfer   TransferDetails `json:"transfer_details" bson:"transfer_details"`
}

// TransferDetails is what the participant claims about the off-band transfer.
type TransferDetails struct {
	Amount          decimal.Decimal `json:"amount" bson:"amount" validate:"required,gt=0"`
	Network         string          `json:"network" bson:"network" validate:"required,oneof=MTN Orange Moov Wave Bank Other"`
	RecipientNumber string          `json:"recipient_number" bson:"recipient_number" validate:"required"`
	TransferNumber  string          `json:"transfer_number" bson:"transfer_number" validate:"required"`
	TransferDate    time.Time       `json:"transfer_date" bson:"transfer_date" validate:"required"`
	TransferTime    string          `json:"transfer_time" bson:"transfer_time" validate:"required"`
}

type AuditEntry struct {
	ID        string    `json:"id" bson:"id"`
	Action    string    `json:"action" bson:"action"`
	ActorID   string    `json:"actor_id" bson:"actor_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty"`
}

// EffectiveStatus returns the stored status, or pending for a payment that has
// not been materialized yet.
func (p *Payment) EffectiveStatus() PaymentStatus {
	if p == nil || p.Status == "" {
		return PaymentStatusPending
	}
	return p.Status
}

// IsOverdue reports whether a payment due at dueDate is late at now. Only an
// absent or pending payment can be overdue; submitted, confirmed and rejected
// payments keep their own status.
func IsOverdue(p *Payment, dueDate, now time.Time) bool {
	return p.EffectiveStatus() == PaymentStatusPending && now.After(dueDate)
}

// DerivedStatus is EffectiveStatus with overdue resolved against now.
func DerivedStatus(p *Payment, dueDate, now time.Time) PaymentStatus {
	if IsOverdue(p, dueDate, now) {
		return PaymentStatusOverdue
	}
	return p.EffectiveStatus()
}

// Submit moves a new or rejected payment to participant_paid.
func (p *Payment) Submit(actorID string, proof *PaymentProof, now time.Time) error {
	switch p.EffectiveStatus() {
	case PaymentStatusPending, PaymentStatusRejected:
	default:
		return customError.WrapPaymentAlreadyMade(p.ParticipantID, p.Cycle, string(p.Status))
	}

	notes := "participant marked the payment as made"
	if p.Status == PaymentStatusRejected {
		notes = "participant resubmitted the payment after rejection"
	}

	p.Status = PaymentStatusParticipantPaid
	p.PaidDate = &now
	p.Proof = proof
	p.RejectionReason = ""
	p.appendAudit(AuditParticipantMarkedPaid, actorID, now, notes)
	return nil
}

// Validate confirms a submitted payment.
func (p *Payment) Validate(actorID string, now time.Time) error {
	if p.EffectiveStatus() != PaymentStatusParticipantPaid {
		return customError.WrapNoPendingPayment(p.ParticipantID, p.Cycle)
	}

	p.Status = PaymentStatusConfirmed
	p.ValidatedBy = actorID
	p.ValidatedAt = &now
	p.appendAudit(AuditInitiatorValidated, actorID, now, "payment validated by the initiator")
	return nil
}

// Reject refuses a submitted payment. The reason is mandatory.
func (p *Payment) Reject(actorID, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return customError.WrapValidation("a rejection reason is required")
	}
	if p.EffectiveStatus() != PaymentStatusParticipantPaid {
		return customError.WrapNoPendingPayment(p.ParticipantID, p.Cycle)
	}

	p.Status = PaymentStatusRejected
	p.RejectionReason = reason
	p.appendAudit(AuditInitiatorRejected, actorID, now, fmt.Sprintf("payment rejected: %s", reason))
	return nil
}

func (p *Payment) appendAudit(action, actorID string, now time.Time, notes string) {
	p.AuditLog = append(p.AuditLog, AuditEntry{
		ID:        uuid.New().String(),
		Action:    action,
		ActorID:   actorID,
		Timestamp: now,
		Notes:     notes,
	})
}
