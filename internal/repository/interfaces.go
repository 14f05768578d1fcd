package repository

import (
	"context"

	"github.com/segyhp/tontine-engine/internal/domain"
)

// TontineRepository defines the data-access contract for the tontine
// aggregate. The whole aggregate (participants and their payments) is the
// unit of persistence and of atomicity.
type TontineRepository interface {
	// Load retrieves a tontine by ID. Missing tontines yield a NotFound
	// business error.
	Load(ctx context.Context, id string) (*domain.Tontine, error)

	// Save persists the aggregate. A zero Version inserts; otherwise the stored
	// row is replaced only if its version still equals tontine.Version, and a
	// ConcurrencyConflict is returned when it does not. On success Version is
	// incremented in place.
	Save(ctx context.Context, tontine *domain.Tontine) error

	// Delete removes a tontine only if its stored version still equals
	// version. A ConcurrencyConflict is returned when it does not.
	Delete(ctx context.Context, id string, version int64) error

	// Query returns tontines matching filter, newest first
	Query(ctx context.Context, filter domain.TontineFilter) ([]*domain.Tontine, error)
}

// NotificationRepository stores each user's notification inbox
type NotificationRepository interface {
	// Create persists a new notification
	Create(ctx context.Context, notification *domain.Notification) error

	// ListByUser returns a user's notifications, newest first
	ListByUser(ctx context.Context, userID string) ([]*domain.Notification, error)

	// MarkRead flags one of the user's notifications as read. A notification
	// owned by someone else is reported as not found.
	MarkRead(ctx context.Context, userID, id string) error

	// MarkAllRead flags every notification of a user as read
	MarkAllRead(ctx context.Context, userID string) error
}
