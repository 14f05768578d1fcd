package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/tontine-engine/internal/domain"
)

type MockTontineRepository struct {
	mock.Mock
}

func (m *MockTontineRepository) Load(ctx context.Context, id string) (*domain.Tontine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tontine), args.Error(1)
}

func (m *MockTontineRepository) Save(ctx context.Context, tontine *domain.Tontine) error {
	args := m.Called(ctx, tontine)
	return args.Error(0)
}

func (m *MockTontineRepository) Delete(ctx context.Context, id string, version int64) error {
	args := m.Called(ctx, id, version)
	return args.Error(0)
}

func (m *MockTontineRepository) Query(ctx context.Context, filter domain.TontineFilter) ([]*domain.Tontine, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Tontine), args.Error(1)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Notification, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
