package domain

import (
	"time"
)

// Frequency is how often a contribution cycle recurs.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// CycleEntry is the derived view of one participant's obligation for the
// current cycle. Status may be PaymentStatusOverdue, which is never stored,
// and is empty for the beneficiary, who owes nothing that cycle.
type CycleEntry struct {
	ParticipantID string        `json:"participant_id"`
	UserID        string        `json:"user_id"`
	Name          string        `json:"name"`
	Position      int           `json:"position"`
	IsBeneficiary bool          `json:"is_beneficiary"`
	DueDate       time.Time     `json:"due_date"`
	Status        PaymentStatus `json:"status,omitempty"`
	Payment       *Payment      `json:"payment,omitempty"`
}

type CycleStatement struct {
	TontineID     string        `json:"tontine_id"`
	Cycle         int           `json:"cycle"`
	DueDate       time.Time     `json:"due_date"`
	BeneficiaryID string        `json:"beneficiary_id,omitempty"`
	Entries       []*CycleEntry `json:"entries"`
	Settled       bool          `json:"settled"`
}
