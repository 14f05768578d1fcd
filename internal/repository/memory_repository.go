package repository

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/segyhp/tontine-engine/internal/domain"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

// Ensure the in-memory stores implement the repository interfaces
var (
	_ TontineRepository      = (*memoryTontineRepository)(nil)
	_ NotificationRepository = (*memoryNotificationRepository)(nil)
)

// memoryTontineRepository keeps encoded aggregates so callers never share
// memory with the store. Invite codes are unique, as in the database stores.
type memoryTontineRepository struct {
	mu       sync.RWMutex
	tontines map[string][]byte
	versions map[string]int64
	codes    map[string]string // invite code -> tontine id
}

func NewMemoryTontineRepository() TontineRepository {
	return &memoryTontineRepository{
		tontines: make(map[string][]byte),
		versions: make(map[string]int64),
		codes:    make(map[string]string),
	}
}

func (r *memoryTontineRepository) Load(ctx context.Context, id string) (*domain.Tontine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.tontines[id]
	if !ok {
		return nil, customError.WrapTontineNotFound(id)
	}
	return decodeTontine(data)
}

func (r *memoryTontineRepository) Save(ctx context.Context, tontine *domain.Tontine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.versions[tontine.ID]
	switch {
	case tontine.Version == 0 && exists:
		return customError.WrapConcurrencyConflict(tontine.ID)
	case tontine.Version != 0 && !exists:
		return customError.WrapTontineNotFound(tontine.ID)
	case tontine.Version != current:
		return customError.WrapConcurrencyConflict(tontine.ID)
	}

	code := strings.ToUpper(tontine.InviteCode)
	if owner, taken := r.codes[code]; taken && owner != tontine.ID {
		return customError.WrapConcurrencyConflict(tontine.ID)
	}

	next := *tontine
	next.Version = current + 1
	next.InviteCode = code
	data, err := json.Marshal(&next)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	r.releaseCode(tontine.ID)
	r.tontines[tontine.ID] = data
	r.versions[tontine.ID] = next.Version
	r.codes[code] = tontine.ID
	tontine.Version = next.Version
	return nil
}

func (r *memoryTontineRepository) Delete(ctx context.Context, id string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.versions[id]
	if !ok {
		return customError.WrapTontineNotFound(id)
	}
	if current != version {
		return customError.WrapConcurrencyConflict(id)
	}
	r.releaseCode(id)
	delete(r.tontines, id)
	delete(r.versions, id)
	return nil
}

// releaseCode frees the invite code held by id. Callers hold mu.
func (r *memoryTontineRepository) releaseCode(id string) {
	for code, owner := range r.codes {
		if owner == id {
			delete(r.codes, code)
		}
	}
}

func (r *memoryTontineRepository) Query(ctx context.Context, filter domain.TontineFilter) ([]*domain.Tontine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Tontine
	for _, data := range r.tontines {
		t, err := decodeTontine(data)
		if err != nil {
			return nil, err
		}
		if matches(t, filter) {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func matches(t *domain.Tontine, filter domain.TontineFilter) bool {
	if filter.InitiatorID != "" && t.InitiatorID != filter.InitiatorID {
		return false
	}
	if filter.InviteCode != "" && !strings.EqualFold(t.InviteCode, filter.InviteCode) {
		return false
	}
	if filter.Status != "" && t.Status != filter.Status {
		return false
	}
	if filter.ParticipantUserID != "" && t.ParticipantByUserID(filter.ParticipantUserID) == nil {
		return false
	}
	return true
}

func decodeTontine(data []byte) (*domain.Tontine, error) {
	var t domain.Tontine
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &t, nil
}

type memoryNotificationRepository struct {
	mu    sync.RWMutex
	items []*domain.Notification
}

func NewMemoryNotificationRepository() NotificationRepository {
	return &memoryNotificationRepository{}
}

func (r *memoryNotificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *notification
	r.items = append(r.items, &cp)
	return nil
}

func (r *memoryNotificationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Notification
	for _, n := range r.items {
		if n.UserID == userID {
			cp := *n
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *memoryNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.items {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return nil
		}
	}
	return customError.WrapNotificationNotFound(id)
}

func (r *memoryNotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.items {
		if n.UserID == userID {
			n.Read = true
		}
	}
	return nil
}
