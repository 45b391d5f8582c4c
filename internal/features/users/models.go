// Package users управляет покупателями магазина: регистрация, баланс,
// рефералы и история операций. models.go описывает структуры таблиц
// users, operations и bought_goods.
package users

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет покупателя.
// referral_id ставится один раз при регистрации и больше не меняется.
type User struct {
	TelegramID int64           `db:"telegram_id"`
	Username   *string         `db:"username"`
	Balance    decimal.Decimal `db:"balance"` // NUMERIC(12,2)
	ReferralID *int64          `db:"referral_id"`
	Language   string          `db:"language"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Operation — запись истории пополнений баланса.
type Operation struct {
	ID     int64           `db:"id"`
	UserID int64           `db:"user_id"`
	Amount decimal.Decimal `db:"amount"`
	At     time.Time       `db:"created_at"`
}

// BoughtItem — одна проданная позиция.
// Количество строк по buyer_id — это и есть счётчик покупок
// пользователя (он нигде не хранится отдельно).
type BoughtItem struct {
	ID       int64           `db:"id"`
	UniqueID string          `db:"unique_id"` // uuid для поиска в поддержке
	ItemName string          `db:"item_name"`
	Value    string          `db:"value"`
	Price    decimal.Decimal `db:"price"`
	BuyerID  int64           `db:"buyer_id"`
	BoughtAt time.Time       `db:"bought_at"`
}
