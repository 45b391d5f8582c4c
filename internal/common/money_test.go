package common

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		price    string
		discount int
		want     string
	}{
		{"19.99", 10, "17.99"}, // 17.991 → half-up → 17.99
		{"100.00", 25, "75.00"},
		{"0.10", 50, "0.05"},
		{"33.33", 33, "22.33"}, // 22.3311
		{"10.00", 100, "0.00"},
		{"10.00", 0, "10.00"},
	}
	for _, c := range cases {
		got := DiscountedPrice(decimal.RequireFromString(c.price), c.discount)
		assert.Equal(t, c.want, got.StringFixed(2), "цена %s со скидкой %d%%", c.price, c.discount)
	}
}

func TestQuantizeHalfUp(t *testing.T) {
	assert.Equal(t, "1.01", Quantize(decimal.RequireFromString("1.005")).StringFixed(2))
	assert.Equal(t, "1.00", Quantize(decimal.RequireFromString("1.004")).StringFixed(2))
}

func TestCommission(t *testing.T) {
	// 10% от 25 = 2.5 → округляется до 3 (половина от нуля)
	assert.Equal(t, "3", Commission(decimal.NewFromInt(25), 10).String())
	assert.Equal(t, "5", Commission(decimal.NewFromInt(50), 10).String())
	assert.True(t, Commission(decimal.NewFromInt(100), 0).IsZero())
}
