package domain

import "time"

type NotificationType string

const (
	NotificationTontineStarted   NotificationType = "tontine_started"
	NotificationPaymentReceived  NotificationType = "payment_received"
	NotificationPaymentValidated NotificationType = "payment_validated"
	NotificationPaymentRejected  NotificationType = "payment_rejected"
	NotificationPaymentDue       NotificationType = "payment_due"
	NotificationPayoutReady      NotificationType = "payout_ready"
	NotificationTontineCompleted NotificationType = "tontine_completed"
)

type Notification struct {
	ID        string           `json:"id" db:"id" bson:"_id"`
	UserID    string           `json:"user_id" db:"user_id" bson:"user_id"`
	Type      NotificationType `json:"type" db:"type" bson:"type"`
	Title     string           `json:"title" db:"title" bson:"title"`
	Message   string           `json:"message" db:"message" bson:"message"`
	Read      bool             `json:"read" db:"read" bson:"read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at" bson:"created_at"`
	TontineID string           `json:"tontine_id,omitempty" db:"tontine_id" bson:"tontine_id,omitempty"`
	ActionURL string           `json:"action_url,omitempty" db:"action_url" bson:"action_url,omitempty"`
}
