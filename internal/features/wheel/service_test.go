package wheel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWheelStore struct {
	spins  map[int64]int
	wins   map[int64]int
	prizes []Prize
	banned map[int64]bool
}

func newFakeWheelStore() *fakeWheelStore {
	return &fakeWheelStore{
		spins:  make(map[int64]int),
		wins:   make(map[int64]int),
		banned: make(map[int64]bool),
	}
}

func (f *fakeWheelStore) Spins(_ context.Context, userID int64) (int, error) {
	return f.spins[userID], nil
}

func (f *fakeWheelStore) AddSpins(_ context.Context, userID int64, n int) error {
	f.spins[userID] += n
	return nil
}

func (f *fakeWheelStore) ConsumeSpin(_ context.Context, userID int64) (bool, error) {
	if f.spins[userID] <= 0 {
		return false, nil
	}
	f.spins[userID]--
	return true, nil
}

func (f *fakeWheelStore) ClearSpins(_ context.Context, userID int64) error {
	f.spins[userID] = 0
	return nil
}

func (f *fakeWheelStore) CountWins(_ context.Context, userID int64) (int, error) {
	return f.wins[userID], nil
}

func (f *fakeWheelStore) RecordWin(_ context.Context, userID int64, _ string) error {
	f.wins[userID]++
	return nil
}

func (f *fakeWheelStore) ActivePrizes(_ context.Context) ([]Prize, error) {
	var active []Prize
	for _, p := range f.prizes {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (f *fakeWheelStore) CreatePrize(_ context.Context, name string) error {
	f.prizes = append(f.prizes, Prize{ID: int64(len(f.prizes) + 1), Name: name, Active: true})
	return nil
}

func (f *fakeWheelStore) DeactivatePrize(_ context.Context, id int64) error {
	for i := range f.prizes {
		if f.prizes[i].ID == id {
			f.prizes[i].Active = false
		}
	}
	return nil
}

func (f *fakeWheelStore) IsBanned(_ context.Context, userID int64) (bool, error) {
	return f.banned[userID], nil
}

func (f *fakeWheelStore) Ban(_ context.Context, userID int64) error {
	f.banned[userID] = true
	return nil
}

func (f *fakeWheelStore) Unban(_ context.Context, userID int64) error {
	delete(f.banned, userID)
	return nil
}

func TestEvaluateGrantsEveryFifthPurchase(t *testing.T) {
	ctx := context.Background()
	store := newFakeWheelStore()
	store.prizes = []Prize{{ID: 1, Name: "Скидка 5%", Active: true}}
	svc := NewService(store, 5)

	granted, err := svc.Evaluate(ctx, 42, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)

	granted, err = svc.Evaluate(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, granted)

	// повтор с тем же счётчиком покупок ничего не доначисляет
	granted, err = svc.Evaluate(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)

	granted, err = svc.Evaluate(ctx, 42, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, granted)
	assert.Equal(t, 2, store.spins[42])
}

func TestEvaluateCountsWinsAsAwarded(t *testing.T) {
	ctx := context.Background()
	store := newFakeWheelStore()
	store.prizes = []Prize{{ID: 1, Name: "Подарок", Active: true}}
	store.wins[42] = 1 // спин уже потрачен на выигрыш
	svc := NewService(store, 5)

	granted, err := svc.Evaluate(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)
}

func TestEvaluateSkipsBannedAndEmptyPool(t *testing.T) {
	ctx := context.Background()

	store := newFakeWheelStore()
	svc := NewService(store, 5)
	granted, err := svc.Evaluate(ctx, 42, 10) // пул призов пуст
	require.NoError(t, err)
	assert.Equal(t, 0, granted)

	store.prizes = []Prize{{ID: 1, Name: "Подарок", Active: true}}
	require.NoError(t, svc.Ban(ctx, 42))
	granted, err = svc.Evaluate(ctx, 42, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)

	require.NoError(t, svc.Unban(ctx, 42))
	granted, err = svc.Evaluate(ctx, 42, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, granted)
}

func TestSpinConsumesAndRecordsWin(t *testing.T) {
	ctx := context.Background()
	store := newFakeWheelStore()
	store.prizes = []Prize{{ID: 1, Name: "Подарок", Active: true}}
	store.spins[42] = 1
	svc := NewService(store, 5)

	prize, err := svc.Spin(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, prize)
	assert.Equal(t, "Подарок", prize.Name)
	assert.Equal(t, 0, store.spins[42])
	assert.Equal(t, 1, store.wins[42])

	// спины кончились
	prize, err = svc.Spin(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, prize)
}

func TestPrizePoolAdministration(t *testing.T) {
	ctx := context.Background()
	store := newFakeWheelStore()
	svc := NewService(store, 5)

	require.NoError(t, svc.AddPrize(ctx, "Скидка 5%"))
	require.NoError(t, svc.AddPrize(ctx, "Подарок"))

	// пул активен — начисление работает
	granted, err := svc.Evaluate(ctx, 42, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, granted)

	// вывод обоих призов опустошает пул и выключает начисление и розыгрыш
	require.NoError(t, svc.RemovePrize(ctx, 1))
	require.NoError(t, svc.RemovePrize(ctx, 2))

	granted, err = svc.Evaluate(ctx, 43, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)

	prize, err := svc.Spin(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, prize)
	assert.Equal(t, 1, store.spins[42]) // спин не сгорел
}

func TestBanClearsSpins(t *testing.T) {
	ctx := context.Background()
	store := newFakeWheelStore()
	store.spins[42] = 3
	svc := NewService(store, 5)

	require.NoError(t, svc.Ban(ctx, 42))
	assert.Equal(t, 0, store.spins[42])
}
