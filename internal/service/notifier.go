package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/notify"
)

// outbox collects the notifications of one mutation. They are delivered only
// after the aggregate has been saved.
type outbox struct {
	tontine *domain.Tontine
	now     time.Time
	items   []*domain.Notification
}

func (o *outbox) add(userID string, typ domain.NotificationType, title, message string) {
	if userID == "" {
		return
	}
	o.items = append(o.items, &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: o.now,
		TontineID: o.tontine.ID,
		ActionURL: fmt.Sprintf("/tontines/%s", o.tontine.ID),
	})
}

// broadcast notifies every participant of the tontine.
func (o *outbox) broadcast(typ domain.NotificationType, title, message string) {
	for _, p := range o.tontine.Participants {
		o.add(p.UserID, typ, title, message)
	}
}

type notifier struct {
	emitter notify.Emitter
	logger  *zap.Logger
}

// deliver emits each notification. A failed delivery is logged and never
// surfaces to the caller.
func (n notifier) deliver(ctx context.Context, items []*domain.Notification) {
	if n.emitter == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		if err := n.emitter.Emit(ctx, item); err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("notification_id", item.ID),
				zap.String("user_id", item.UserID),
				zap.String("type", string(item.Type)),
				zap.String("tontine_id", item.TontineID),
				zap.Error(err),
			)
		}
	}
}
