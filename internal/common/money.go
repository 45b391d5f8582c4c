// Package common содержит общие утилиты, используемые во всём проекте.
// money.go — работа с деньгами: фиксированная точка, 2 знака,
// округление «половина вверх» (как ROUND_HALF_UP в банковских прайсах).
package common

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantize приводит сумму к 2 десятичным знакам с округлением half-up.
// Все суммы в БД хранятся как NUMERIC(12,2), поэтому любое вычисленное
// значение перед записью проходит через Quantize.
func Quantize(v decimal.Decimal) decimal.Decimal {
	// decimal.Round округляет «половину от нуля» — для положительных
	// цен это ровно half-up.
	return v.Round(2)
}

// DiscountedPrice считает цену со скидкой discount процентов.
// price × (100 − discount) / 100, затем Quantize.
func DiscountedPrice(price decimal.Decimal, discount int) decimal.Decimal {
	factor := decimal.NewFromInt(100 - int64(discount)).Div(decimal.NewFromInt(100))
	return Quantize(price.Mul(factor))
}

// Commission считает реферальную комиссию percent процентов от суммы.
// Бонус округляется до целой единицы валюты.
func Commission(amount decimal.Decimal, percent int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(0)
}

// FormatAmount форматирует сумму для сообщений пользователю: "17.99€".
func FormatAmount(v decimal.Decimal) string {
	return fmt.Sprintf("%s€", v.StringFixed(2))
}
