package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/shop-bot/internal/common"
)

// fakeStore — in-memory леджер с той же атомарной семантикой, что у SQL.
type fakeStore struct {
	mu        sync.Mutex
	balances  map[int64]decimal.Decimal
	referrals map[int64]*int64
	ops       []Operation
	bought    []BoughtItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		balances:  make(map[int64]decimal.Decimal),
		referrals: make(map[int64]*int64),
	}
}

func (f *fakeStore) Create(_ context.Context, u *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[u.TelegramID]; !ok {
		f.balances[u.TelegramID] = decimal.Zero
		f.referrals[u.TelegramID] = u.ReferralID
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return &User{TelegramID: id, Balance: b, ReferralID: f.referrals[id]}, nil
}

func (f *fakeStore) GetBalance(_ context.Context, id int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[id]
	if !ok {
		return decimal.Zero, common.ErrUserNotFound
	}
	return b, nil
}

func (f *fakeStore) GetReferral(_ context.Context, id int64) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[id]; !ok {
		return nil, common.ErrUserNotFound
	}
	return f.referrals[id], nil
}

func (f *fakeStore) Credit(_ context.Context, id int64, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[id]
	if !ok {
		return common.ErrUserNotFound
	}
	f.balances[id] = b.Add(amount)
	return nil
}

func (f *fakeStore) Debit(_ context.Context, id int64, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[id]
	if !ok {
		return common.ErrUserNotFound
	}
	if b.LessThan(amount) {
		return common.ErrInsufficientBalance
	}
	f.balances[id] = b.Sub(amount)
	return nil
}

func (f *fakeStore) DebitUpTo(_ context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[id]
	if !ok {
		return decimal.Zero, common.ErrUserNotFound
	}
	debited := decimal.Min(b, amount)
	f.balances[id] = b.Sub(debited)
	return debited, nil
}

func (f *fakeStore) RecordOperation(_ context.Context, userID int64, amount decimal.Decimal, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, Operation{UserID: userID, Amount: amount, At: at})
	return nil
}

func (f *fakeStore) RecordPurchase(_ context.Context, b *BoughtItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bought = append(f.bought, *b)
	return "test-purchase", nil
}

func (f *fakeStore) CountPurchases(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, bi := range f.bought {
		if bi.BuyerID == id {
			n++
		}
	}
	return n, nil
}

func ref(id int64) *int64 { return &id }

func TestApplyTopUpCreditsBalanceAndHistory(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 0)
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 42}))

	res, err := svc.ApplyTopUp(ctx, 42, decimal.RequireFromString("25.00"), time.Now())
	require.NoError(t, err)
	assert.True(t, res.ReferralCommission.IsZero())

	b, err := svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "25.00", b.StringFixed(2))
	assert.Len(t, store.ops, 1)
}

func TestApplyTopUpPaysReferralCommission(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 10)
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 100}))
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 42, ReferralID: ref(100)}))

	res, err := svc.ApplyTopUp(ctx, 42, decimal.RequireFromString("50.00"), time.Now())
	require.NoError(t, err)
	require.NotNil(t, res.ReferralID)
	assert.Equal(t, "5", res.ReferralCommission.String())

	refBalance, err := svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "5.00", refBalance.StringFixed(2))
}

func TestApplyTopUpNoCommissionWhenPercentZero(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 0)
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 100}))
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 42, ReferralID: ref(100)}))

	res, err := svc.ApplyTopUp(ctx, 42, decimal.RequireFromString("50.00"), time.Now())
	require.NoError(t, err)
	assert.Nil(t, res.ReferralID)

	refBalance, _ := svc.GetBalance(ctx, 100)
	assert.True(t, refBalance.IsZero())
}

func TestDebitGuardsInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 0)
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 42}))
	require.NoError(t, svc.Credit(ctx, 42, decimal.RequireFromString("10.00")))

	err := svc.Debit(ctx, 42, decimal.RequireFromString("10.01"))
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	// баланс не изменился
	b, _ := svc.GetBalance(ctx, 42)
	assert.Equal(t, "10.00", b.StringFixed(2))
}

func TestDebitUpToClampsToBalance(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, 0)
	require.NoError(t, svc.Register(ctx, &User{TelegramID: 42}))
	require.NoError(t, svc.Credit(ctx, 42, decimal.RequireFromString("3.50")))

	debited, err := svc.DebitUpTo(ctx, 42, decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	assert.Equal(t, "3.50", debited.StringFixed(2))

	b, _ := svc.GetBalance(ctx, 42)
	assert.True(t, b.IsZero())
}
