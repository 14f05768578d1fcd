package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/tontine-engine/internal/domain"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, read, created_at, tontine_id, action_url)
		VALUES (:id, :user_id, :type, :title, :message, :read, :created_at, :tontine_id, :action_url)
	`

	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, read, created_at, tontine_id, action_url
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	var notifications []*domain.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if affected == 0 {
		return customError.WrapNotificationNotFound(id)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}
