package stock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/shop-bot/internal/common"
)

// fakeStockStore повторяет атомарность ClaimFinite мьютексом:
// одна строка достаётся ровно одному вызову.
type fakeStockStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

func (f *fakeStockStore) ClaimFinite(_ context.Context, itemName string) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ItemName == itemName && !e.IsInfinity {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			claimed := e
			return &claimed, nil
		}
	}
	return nil, nil
}

func (f *fakeStockStore) GetInfinite(_ context.Context, itemName string) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ItemName == itemName && e.IsInfinity {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStockStore) Insert(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ins := *e
	ins.ID = f.nextID
	f.entries = append(f.entries, ins)
	return nil
}

func (f *fakeStockStore) CountByItem(_ context.Context, itemName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.ItemName == itemName && !e.IsInfinity {
			n++
		}
	}
	return n, nil
}

func TestClaimFiniteThenOutOfStock(t *testing.T) {
	ctx := context.Background()
	store := &fakeStockStore{}
	svc := NewService(store)
	require.NoError(t, svc.Add(ctx, "X", "code-1", false))

	entry, err := svc.Claim(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "code-1", entry.Value)

	_, err = svc.Claim(ctx, "X")
	assert.ErrorIs(t, err, common.ErrOutOfStock)
}

func TestClaimInfiniteNeverExhausts(t *testing.T) {
	ctx := context.Background()
	store := &fakeStockStore{}
	svc := NewService(store)
	require.NoError(t, svc.Add(ctx, "X", "license-key", true))

	for i := 0; i < 3; i++ {
		entry, err := svc.Claim(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, "license-key", entry.Value)
		assert.True(t, entry.IsInfinity)
	}
}

// Две конкурентные покупки последней позиции: ровно одна успешна.
func TestClaimConcurrentLastEntry(t *testing.T) {
	ctx := context.Background()
	store := &fakeStockStore{}
	svc := NewService(store)
	require.NoError(t, svc.Add(ctx, "X", "code-1", false))

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(ctx, "X")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, outOfStock int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case err == common.ErrOutOfStock:
			outOfStock++
		default:
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, outOfStock)
}

func TestReleaseReturnsEntry(t *testing.T) {
	ctx := context.Background()
	store := &fakeStockStore{}
	svc := NewService(store)
	require.NoError(t, svc.Add(ctx, "X", "code-1", false))

	entry, err := svc.Claim(ctx, "X")
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, entry))

	n, err := svc.Remaining(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// бесконечную позицию возвращать не нужно — no-op
	require.NoError(t, svc.Release(ctx, &Entry{ItemName: "X", IsInfinity: true}))
	n, _ = svc.Remaining(ctx, "X")
	assert.Equal(t, 1, n)
}
