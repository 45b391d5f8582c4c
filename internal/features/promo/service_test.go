package promo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/shop-bot/internal/common"
)

// fakePromoStore держит промокоды и использования в памяти.
type fakePromoStore struct {
	codes map[string]*Code
	used  map[[2]string]map[int64]bool // (code,item) → users
}

func newFakePromoStore() *fakePromoStore {
	return &fakePromoStore{
		codes: make(map[string]*Code),
		used:  make(map[[2]string]map[int64]bool),
	}
}

func (f *fakePromoStore) GetByCode(_ context.Context, code string) (*Code, error) {
	c := f.codes[NormalizeCode(code)]
	if c == nil || !c.Active {
		return nil, nil
	}
	return c, nil
}

func (f *fakePromoStore) IsUsed(_ context.Context, userID int64, code, itemName string) (bool, error) {
	return f.used[[2]string{NormalizeCode(code), itemName}][userID], nil
}

func (f *fakePromoStore) MarkUsed(_ context.Context, u *Usage) error {
	key := [2]string{NormalizeCode(u.Code), u.ItemName}
	if f.used[key] == nil {
		f.used[key] = make(map[int64]bool)
	}
	f.used[key][u.UserID] = true
	return nil
}

func strptr(s string) *string { return &s }

func baseRequest() ResolveRequest {
	return ResolveRequest{
		Code:          "SALE10",
		UserID:        42,
		ItemName:      "X",
		CategoryChain: []string{"flowers", "gifts"},
		BasePrice:     decimal.RequireFromString("19.99"),
		City:          "Vilnius",
		Now:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestResolveDiscountRounding(t *testing.T) {
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{Code: "sale10", Discount: 10, Active: true}
	svc := NewService(store)

	res, err := svc.Resolve(context.Background(), baseRequest())
	require.NoError(t, err)
	// 19.99 × 0.90 = 17.991 → half-up до 2 знаков
	assert.Equal(t, "17.99", res.Price.StringFixed(2))
	assert.Equal(t, "sale10", res.Code)
}

func TestResolveUnknownCode(t *testing.T) {
	svc := NewService(newFakePromoStore())
	_, err := svc.Resolve(context.Background(), baseRequest())
	assert.Equal(t, common.RejectNotFound, common.RejectReasonOf(err))
}

func TestResolveExpiredCode(t *testing.T) {
	store := newFakePromoStore()
	expiry := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.codes["sale10"] = &Code{Code: "sale10", Discount: 10, Active: true, ExpiresAt: &expiry}
	svc := NewService(store)

	_, err := svc.Resolve(context.Background(), baseRequest())
	assert.Equal(t, common.RejectExpired, common.RejectReasonOf(err))
}

func TestResolveSingleUsePerUserItem(t *testing.T) {
	ctx := context.Background()
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{Code: "sale10", Discount: 10, Active: true}
	svc := NewService(store)

	res, err := svc.Resolve(ctx, baseRequest())
	require.NoError(t, err)
	require.NoError(t, svc.MarkUsed(ctx, &Usage{UserID: 42, Code: res.Code, ItemName: "X"}))

	// повтор по той же тройке (user, code, item) — отказ,
	// даже если город/район другие
	req := baseRequest()
	req.City = "Kaunas"
	req.District = strptr("Centras")
	_, err = svc.Resolve(ctx, req)
	assert.Equal(t, common.RejectAlreadyUsed, common.RejectReasonOf(err))

	// другой пользователь — код ещё действует
	req2 := baseRequest()
	req2.UserID = 43
	_, err = svc.Resolve(ctx, req2)
	assert.NoError(t, err)
}

func TestResolveGeoCityWideTarget(t *testing.T) {
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{
		Code: "sale10", Discount: 10, Active: true,
		Geo: []GeoTarget{{City: "Vilnius", District: nil}},
	}
	svc := NewService(store)

	// NULL-район покрывает любой район Вильнюса
	req := baseRequest()
	req.District = strptr("Senamiestis")
	_, err := svc.Resolve(context.Background(), req)
	assert.NoError(t, err)

	// другой город — отказ
	req = baseRequest()
	req.City = "Kaunas"
	_, err = svc.Resolve(context.Background(), req)
	assert.Equal(t, common.RejectLocationNotEligible, common.RejectReasonOf(err))
}

func TestResolveGeoExactDistrictTarget(t *testing.T) {
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{
		Code: "sale10", Discount: 10, Active: true,
		Geo: []GeoTarget{{City: "Vilnius", District: strptr("Centras")}},
	}
	svc := NewService(store)

	req := baseRequest()
	req.District = strptr("Centras")
	_, err := svc.Resolve(context.Background(), req)
	assert.NoError(t, err)

	req = baseRequest()
	req.District = strptr("Senamiestis")
	_, err = svc.Resolve(context.Background(), req)
	assert.Equal(t, common.RejectLocationNotEligible, common.RejectReasonOf(err))
}

func TestResolveGeoEmptyTargetsMatchEverywhere(t *testing.T) {
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{Code: "sale10", Discount: 10, Active: true}
	svc := NewService(store)

	req := baseRequest()
	req.City = "Klaipeda"
	req.District = strptr("nėra") // заглушка «без района»
	_, err := svc.Resolve(context.Background(), req)
	assert.NoError(t, err)
}

func TestResolveProductAllowList(t *testing.T) {
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{
		Code: "sale10", Discount: 10, Active: true,
		Filters: []ProductFilter{{Type: FilterCategory, Name: "Gifts", Allowed: true}},
	}
	svc := NewService(store)

	// категория-предок "gifts" есть в цепочке — подходит
	_, err := svc.Resolve(context.Background(), baseRequest())
	assert.NoError(t, err)

	// товар вне белого списка — отказ
	req := baseRequest()
	req.CategoryChain = []string{"electronics"}
	_, err = svc.Resolve(context.Background(), req)
	assert.Equal(t, common.RejectProductNotEligible, common.RejectReasonOf(err))
}

func TestResolveProductDenyVetoesAllow(t *testing.T) {
	store := newFakePromoStore()
	store.codes["sale10"] = &Code{
		Code: "sale10", Discount: 10, Active: true,
		Filters: []ProductFilter{
			{Type: FilterCategory, Name: "Gifts", Allowed: true},
			{Type: FilterItem, Name: "X", Allowed: false},
		},
	}
	svc := NewService(store)

	// товар прошёл белый список, но вето по имени сильнее
	_, err := svc.Resolve(context.Background(), baseRequest())
	assert.Equal(t, common.RejectProductNotEligible, common.RejectReasonOf(err))
}

func TestNormalizeDistrictStopWords(t *testing.T) {
	assert.Nil(t, NormalizeDistrict("  нет "))
	assert.Nil(t, NormalizeDistrict("-"))
	assert.Nil(t, NormalizeDistrict(""))
	require.NotNil(t, NormalizeDistrict("  senamiestis "))
	assert.Equal(t, "Senamiestis", *NormalizeDistrict("  senamiestis "))
}
