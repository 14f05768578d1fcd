// Package notify delivers user notifications. Delivery is best effort: callers
// log failures and never undo the state change that produced a notification.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/repository"
)

// ChannelPrefix is prepended to the user id to form the pub/sub channel.
const ChannelPrefix = "notifications:"

// Emitter delivers a single notification.
type Emitter interface {
	Emit(ctx context.Context, n *domain.Notification) error
}

var (
	_ Emitter = (*StoreEmitter)(nil)
	_ Emitter = (*RedisEmitter)(nil)
	_ Emitter = Fanout(nil)
)

// StoreEmitter writes notifications to the user's inbox.
type StoreEmitter struct {
	repo repository.NotificationRepository
}

func NewStoreEmitter(repo repository.NotificationRepository) *StoreEmitter {
	return &StoreEmitter{repo: repo}
}

func (e *StoreEmitter) Emit(ctx context.Context, n *domain.Notification) error {
	return e.repo.Create(ctx, n)
}

// RedisEmitter publishes notifications as JSON for live subscribers.
type RedisEmitter struct {
	client redis.UniversalClient
}

func NewRedisEmitter(client redis.UniversalClient) *RedisEmitter {
	return &RedisEmitter{client: client}
}

func (e *RedisEmitter) Emit(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := e.client.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Channel returns the pub/sub channel of a user.
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// Fanout hands each notification to every emitter and joins their errors.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, n *domain.Notification) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
