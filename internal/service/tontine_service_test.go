package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/config"
	"github.com/segyhp/tontine-engine/internal/domain"
	"github.com/segyhp/tontine-engine/internal/notify"
	"github.com/segyhp/tontine-engine/internal/proofstore"
	"github.com/segyhp/tontine-engine/internal/repository"
	"github.com/segyhp/tontine-engine/internal/repository/mocks"
	"github.com/segyhp/tontine-engine/internal/rotation"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

const initiator = "user-initiator"

var pngProof = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fixture struct {
	svc   *TontineService
	repo  repository.TontineRepository
	inbox repository.NotificationRepository
	fs    afero.Fs
	now   time.Time
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	business config.BusinessConfig
	emitter  notify.Emitter
	proofs   proofstore.Store
}

func withAutoAdvance() fixtureOption {
	return func(c *fixtureConfig) { c.business.AutoAdvanceCycle = true }
}

func withEmitter(e notify.Emitter) fixtureOption {
	return func(c *fixtureConfig) { c.emitter = e }
}

func withProofs(p proofstore.Store) fixtureOption {
	return func(c *fixtureConfig) { c.proofs = p }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		repo:  repository.NewMemoryTontineRepository(),
		inbox: repository.NewMemoryNotificationRepository(),
		fs:    afero.NewMemMapFs(),
		now:   time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC),
	}

	cfg := &fixtureConfig{
		business: config.BusinessConfig{MinParticipants: 2, MaxConflictRetries: 3},
		emitter:  notify.NewStoreEmitter(f.inbox),
		proofs:   proofstore.NewFileStore(f.fs, 1<<20),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	f.svc = NewTontineService(f.repo, cfg.proofs, cfg.emitter, zap.NewNop(), cfg.business,
		WithClock(func() time.Time { return f.now }),
		WithRandSource(func() (*rand.Rand, error) { return rotation.NewSeededRand(7), nil }),
	)
	return f
}

func createRequest() *domain.CreateTontineRequest {
	return &domain.CreateTontineRequest{
		Name:            "Njangi des amis",
		InitiatorID:     initiator,
		Amount:          decimal.NewFromInt(10000),
		Frequency:       domain.FrequencyMonthly,
		MaxParticipants: 5,
		StartDate:       time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		OrderType:       domain.OrderTypeManual,
		GainType:        domain.GainTypeMoney,
	}
}

func (f *fixture) create(t *testing.T, mutate ...func(r *domain.CreateTontineRequest)) *domain.Tontine {
	t.Helper()
	req := createRequest()
	for _, m := range mutate {
		m(req)
	}
	tontine, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return tontine
}

func userID(i int) string { return fmt.Sprintf("user-%d", i) }

// join adds n participants user-1..user-n in order.
func (f *fixture) join(t *testing.T, tontineID string, n int) *domain.Tontine {
	t.Helper()
	var tontine *domain.Tontine
	for i := 1; i <= n; i++ {
		var err error
		tontine, err = f.svc.Join(context.Background(), tontineID, userID(i), &domain.JoinRequest{
			UserID: userID(i),
			Name:   fmt.Sprintf("Member %d", i),
		})
		require.NoError(t, err)
	}
	return tontine
}

// started creates a tontine with n participants and starts it.
func (f *fixture) started(t *testing.T, n int, mutate ...func(r *domain.CreateTontineRequest)) *domain.Tontine {
	t.Helper()
	tontine := f.create(t, mutate...)
	f.join(t, tontine.ID, n)
	tontine, err := f.svc.Start(context.Background(), tontine.ID, initiator)
	require.NoError(t, err)
	return tontine
}

func (f *fixture) notificationsOf(t *testing.T, userID string, typ domain.NotificationType) []*domain.Notification {
	t.Helper()
	all, err := f.inbox.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	var out []*domain.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a draft with an invite code", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.create(t)

		assert.NotEmpty(t, tontine.ID)
		assert.Equal(t, domain.TontineStatusDraft, tontine.Status)
		assert.Equal(t, 0, tontine.CurrentCycle)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, tontine.InviteCode)
		assert.Equal(t, int64(1), tontine.Version)
		assert.Empty(t, tontine.Participants)

		loaded, err := f.svc.Get(ctx, tontine.ID)
		require.NoError(t, err)
		assert.Equal(t, tontine.InviteCode, loaded.InviteCode)
	})

	tests := []struct {
		name   string
		mutate func(r *domain.CreateTontineRequest)
		target error
	}{
		{"missing name", func(r *domain.CreateTontineRequest) { r.Name = "" }, customError.ErrValidation},
		{"zero amount", func(r *domain.CreateTontineRequest) { r.Amount = decimal.Zero }, customError.ErrValidation},
		{"negative amount", func(r *domain.CreateTontineRequest) { r.Amount = decimal.NewFromInt(-5) }, customError.ErrValidation},
		{"unknown frequency", func(r *domain.CreateTontineRequest) { r.Frequency = "yearly" }, customError.ErrValidation},
		{"custom without days", func(r *domain.CreateTontineRequest) { r.Frequency = domain.FrequencyCustom }, customError.ErrInvalidFrequency},
		{"pack without description", func(r *domain.CreateTontineRequest) { r.GainType = domain.GainTypePack }, customError.ErrValidation},
		{"single seat", func(r *domain.CreateTontineRequest) { r.MaxParticipants = 1 }, customError.ErrValidation},
		{"payment day out of range", func(r *domain.CreateTontineRequest) { r.PaymentDay = 32 }, customError.ErrValidation},
		{"missing start date", func(r *domain.CreateTontineRequest) { r.StartDate = time.Time{} }, customError.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := createRequest()
			tt.mutate(req)

			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tt.target)

			all, err := f.svc.List(ctx, domain.TontineFilter{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("manual monthly tontine opens cycle one", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.started(t, 3)

		assert.Equal(t, domain.TontineStatusActive, tontine.Status)
		assert.Equal(t, 1, tontine.CurrentCycle)
		require.NotNil(t, tontine.StartedAt)
		for i, p := range tontine.Participants {
			assert.Equal(t, i+1, p.Position)
			assert.Equal(t, userID(i+1), p.UserID)
		}
		assert.Equal(t, userID(1), tontine.Beneficiary().UserID)

		for i := 1; i <= 3; i++ {
			assert.Len(t, f.notificationsOf(t, userID(i), domain.NotificationTontineStarted), 1)
		}
	})

	t.Run("random order is a permutation", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.started(t, 5, func(r *domain.CreateTontineRequest) { r.OrderType = domain.OrderTypeRandom })

		assert.True(t, rotation.IsPermutation(tontine.Participants))
		users := make(map[string]bool)
		for _, p := range tontine.Participants {
			users[p.UserID] = true
		}
		assert.Len(t, users, 5)
	})

	t.Run("needs two participants", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.create(t)
		f.join(t, tontine.ID, 1)

		_, err := f.svc.Start(ctx, tontine.ID, initiator)
		assert.ErrorIs(t, err, customError.ErrInvalidTransition)

		loaded, err := f.svc.Get(ctx, tontine.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TontineStatusDraft, loaded.Status)
	})

	t.Run("only the initiator may start", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.create(t)
		f.join(t, tontine.ID, 2)

		_, err := f.svc.Start(ctx, tontine.ID, userID(1))
		assert.ErrorIs(t, err, customError.ErrForbidden)
	})

	t.Run("cannot start twice", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.started(t, 2)

		_, err := f.svc.Start(ctx, tontine.ID, initiator)
		assert.ErrorIs(t, err, customError.ErrInvalidTransition)
	})

	t.Run("unknown tontine", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Start(ctx, "missing", initiator)
		assert.ErrorIs(t, err, customError.ErrNotFound)
	})
}

func TestSuspendResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tontine := f.started(t, 3)

	suspended, err := f.svc.Suspend(ctx, tontine.ID, initiator)
	require.NoError(t, err)
	assert.Equal(t, domain.TontineStatusSuspended, suspended.Status)
	assert.Equal(t, 1, suspended.CurrentCycle)

	_, err = f.svc.Suspend(ctx, tontine.ID, initiator)
	assert.ErrorIs(t, err, customError.ErrInvalidTransition)

	_, err = f.svc.MarkPaid(ctx, tontine.ID, tontine.Participants[1].ID, userID(2), markPaidRequest(f.now))
	assert.ErrorIs(t, err, customError.ErrInvalidTransition)

	resumed, err := f.svc.Resume(ctx, tontine.ID, initiator)
	require.NoError(t, err)
	assert.Equal(t, domain.TontineStatusActive, resumed.Status)
	assert.Equal(t, 1, resumed.CurrentCycle)
	for i, p := range resumed.Participants {
		assert.Equal(t, tontine.Participants[i].ID, p.ID)
		assert.Equal(t, tontine.Participants[i].Position, p.Position)
	}

	_, err = f.svc.Resume(ctx, tontine.ID, initiator)
	assert.ErrorIs(t, err, customError.ErrInvalidTransition)
}

func TestEditAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("partial edit of a draft", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.create(t)
		f.now = f.now.Add(time.Hour)

		name := "Renamed"
		amount := decimal.NewFromInt(25000)
		edited, err := f.svc.Edit(ctx, tontine.ID, initiator, &domain.EditTontineRequest{Name: &name, Amount: &amount})
		require.NoError(t, err)

		assert.Equal(t, "Renamed", edited.Name)
		assert.True(t, edited.Amount.Equal(amount))
		assert.Equal(t, tontine.Frequency, edited.Frequency)
		assert.True(t, edited.UpdatedAt.Equal(f.now))
	})

	t.Run("edit re-validates the result", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.create(t)

		custom := domain.FrequencyCustom
		_, err := f.svc.Edit(ctx, tontine.ID, initiator, &domain.EditTontineRequest{Frequency: &custom})
		assert.ErrorIs(t, err, customError.ErrValidation)

		zero := decimal.Zero
		_, err = f.svc.Edit(ctx, tontine.ID, initiator, &domain.EditTontineRequest{Amount: &zero})
		assert.ErrorIs(t, err, customError.ErrValidation)

		f.join(t, tontine.ID, 3)
		two := 2
		_, err = f.svc.Edit(ctx, tontine.ID, initiator, &domain.EditTontineRequest{MaxParticipants: &two})
		assert.ErrorIs(t, err, customError.ErrValidation)

		loaded, err := f.svc.Get(ctx, tontine.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.FrequencyMonthly, loaded.Frequency)
		assert.Equal(t, 5, loaded.MaxParticipants)
	})

	t.Run("edit and delete are draft only", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.started(t, 2)

		name := "Too late"
		_, err := f.svc.Edit(ctx, tontine.ID, initiator, &domain.EditTontineRequest{Name: &name})
		assert.ErrorIs(t, err, customError.ErrInvalidTransition)
		assert.ErrorIs(t, f.svc.Delete(ctx, tontine.ID, initiator), customError.ErrInvalidTransition)
	})

	t.Run("delete a draft", func(t *testing.T) {
		f := newFixture(t)
		tontine := f.create(t)

		assert.ErrorIs(t, f.svc.Delete(ctx, tontine.ID, userID(1)), customError.ErrForbidden)
		require.NoError(t, f.svc.Delete(ctx, tontine.ID, initiator))

		_, err := f.svc.Get(ctx, tontine.ID)
		assert.ErrorIs(t, err, customError.ErrNotFound)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mine := f.create(t)
	f.join(t, mine.ID, 2)
	f.now = f.now.Add(time.Minute)
	other := f.create(t, func(r *domain.CreateTontineRequest) { r.InitiatorID = "someone-else" })

	byInitiator, err := f.svc.List(ctx, domain.TontineFilter{InitiatorID: initiator})
	require.NoError(t, err)
	require.Len(t, byInitiator, 1)
	assert.Equal(t, mine.ID, byInitiator[0].ID)

	byParticipant, err := f.svc.List(ctx, domain.TontineFilter{ParticipantUserID: userID(2)})
	require.NoError(t, err)
	require.Len(t, byParticipant, 1)

	all, err := f.svc.List(ctx, domain.TontineFilter{Status: domain.TontineStatusDraft})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other.ID, all[0].ID)
}

func TestConcurrencyRetry(t *testing.T) {
	ctx := context.Background()

	draft := func() *domain.Tontine {
		return &domain.Tontine{
			ID:              "t-1",
			Name:            "Retry",
			InitiatorID:     initiator,
			Amount:          decimal.NewFromInt(1000),
			Frequency:       domain.FrequencyWeekly,
			MaxParticipants: domain.Unlimited,
			Status:          domain.TontineStatusDraft,
			OrderType:       domain.OrderTypeManual,
			GainType:        domain.GainTypeMoney,
			Participants:    []*domain.Participant{},
			Version:         4,
		}
	}
	join := &domain.JoinRequest{UserID: userID(1), Name: "Member 1"}
	cfg := config.BusinessConfig{MinParticipants: 2, MaxConflictRetries: 2}

	t.Run("replays the whole read-modify-write", func(t *testing.T) {
		repo := new(mocks.MockTontineRepository)
		repo.On("Load", ctx, "t-1").Return(draft(), nil).Once()
		repo.On("Load", ctx, "t-1").Return(draft(), nil).Once()
		repo.On("Save", ctx, mock.AnythingOfType("*domain.Tontine")).Return(customError.WrapConcurrencyConflict("t-1")).Once()
		repo.On("Save", ctx, mock.AnythingOfType("*domain.Tontine")).Return(nil).Once()

		svc := NewTontineService(repo, nil, nil, zap.NewNop(), cfg)
		tontine, err := svc.Join(ctx, "t-1", userID(1), join)
		require.NoError(t, err)
		assert.Len(t, tontine.Participants, 1)
		repo.AssertExpectations(t)
	})

	t.Run("surfaces the conflict after the retry budget", func(t *testing.T) {
		repo := new(mocks.MockTontineRepository)
		repo.On("Load", ctx, "t-1").Return(draft(), nil).Times(3)
		repo.On("Save", ctx, mock.AnythingOfType("*domain.Tontine")).Return(customError.WrapConcurrencyConflict("t-1")).Times(3)

		svc := NewTontineService(repo, nil, nil, zap.NewNop(), cfg)
		_, err := svc.Join(ctx, "t-1", userID(1), join)
		assert.ErrorIs(t, err, customError.ErrConcurrencyConflict)
		repo.AssertExpectations(t)
	})

	t.Run("domain errors are not retried", func(t *testing.T) {
		repo := new(mocks.MockTontineRepository)
		full := draft()
		full.MaxParticipants = 2
		full.Participants = []*domain.Participant{{ID: "p-1", UserID: "a", Position: 1}, {ID: "p-2", UserID: "b", Position: 2}}
		repo.On("Load", ctx, "t-1").Return(full, nil).Once()

		svc := NewTontineService(repo, nil, nil, zap.NewNop(), cfg)
		_, err := svc.Join(ctx, "t-1", userID(1), join)
		assert.ErrorIs(t, err, customError.ErrTontineFull)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

// startingRepository starts the tontine right before the first delete
// reaches the store.
type startingRepository struct {
	repository.TontineRepository
	start   func()
	started bool
}

func (r *startingRepository) Delete(ctx context.Context, id string, version int64) error {
	if !r.started {
		r.started = true
		r.start()
	}
	return r.TontineRepository.Delete(ctx, id, version)
}

func TestDeleteRacesStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tontine := f.create(t)
	f.join(t, tontine.ID, 2)

	racing := &startingRepository{TontineRepository: f.repo}
	racing.start = func() {
		_, err := f.svc.Start(ctx, tontine.ID, initiator)
		require.NoError(t, err)
	}
	deleter := NewTontineService(racing, nil, nil, zap.NewNop(), config.BusinessConfig{MinParticipants: 2, MaxConflictRetries: 3})

	err := deleter.Delete(ctx, tontine.ID, initiator)
	assert.ErrorIs(t, err, customError.ErrInvalidTransition)

	loaded, err := f.svc.Get(ctx, tontine.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TontineStatusActive, loaded.Status)
}

func TestDeleteRetry(t *testing.T) {
	ctx := context.Background()
	cfg := config.BusinessConfig{MinParticipants: 2, MaxConflictRetries: 1}
	draft := &domain.Tontine{ID: "t-1", InitiatorID: initiator, Status: domain.TontineStatusDraft, Version: 3}

	t.Run("replays after a conflicting write", func(t *testing.T) {
		repo := new(mocks.MockTontineRepository)
		repo.On("Load", ctx, "t-1").Return(draft, nil).Twice()
		repo.On("Delete", ctx, "t-1", int64(3)).Return(customError.WrapConcurrencyConflict("t-1")).Once()
		repo.On("Delete", ctx, "t-1", int64(3)).Return(nil).Once()

		svc := NewTontineService(repo, nil, nil, zap.NewNop(), cfg)
		require.NoError(t, svc.Delete(ctx, "t-1", initiator))
		repo.AssertExpectations(t)
	})

	t.Run("surfaces the conflict after the retry budget", func(t *testing.T) {
		repo := new(mocks.MockTontineRepository)
		repo.On("Load", ctx, "t-1").Return(draft, nil).Twice()
		repo.On("Delete", ctx, "t-1", int64(3)).Return(customError.WrapConcurrencyConflict("t-1")).Twice()

		svc := NewTontineService(repo, nil, nil, zap.NewNop(), cfg)
		assert.ErrorIs(t, svc.Delete(ctx, "t-1", initiator), customError.ErrConcurrencyConflict)
		repo.AssertExpectations(t)
	})
}

func TestCreateRedrawsTakenInviteCode(t *testing.T) {
	ctx := context.Background()

	var codes []string
	repo := new(mocks.MockTontineRepository)
	record := func(args mock.Arguments) { codes = append(codes, args.Get(1).(*domain.Tontine).InviteCode) }
	repo.On("Save", ctx, mock.AnythingOfType("*domain.Tontine")).Run(record).Return(customError.WrapConcurrencyConflict("t-1")).Once()
	repo.On("Save", ctx, mock.AnythingOfType("*domain.Tontine")).Run(record).Return(nil).Once()

	svc := NewTontineService(repo, nil, nil, zap.NewNop(), config.BusinessConfig{MinParticipants: 2, MaxConflictRetries: 3})
	tontine, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	require.Len(t, codes, 2)
	assert.Equal(t, codes[1], tontine.InviteCode)
	repo.AssertExpectations(t)
}

type brokenEmitter struct{ calls int }

func (b *brokenEmitter) Emit(context.Context, *domain.Notification) error {
	b.calls++
	return errors.New("smtp unreachable")
}

func TestNotificationFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	emitter := &brokenEmitter{}
	f := newFixture(t, withEmitter(emitter))

	tontine := f.started(t, 3)
	assert.Equal(t, 3, emitter.calls)

	loaded, err := f.svc.Get(ctx, tontine.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TontineStatusActive, loaded.Status)
	assert.Equal(t, 1, loaded.CurrentCycle)
}

func proofRequest(data []byte) domain.ProofFile {
	return domain.ProofFile{
		Name:        "receipt.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
	}
}
