// Package promo — промокоды: скидка, срок действия, географические
// таргеты и фильтры по каталогу. models.go описывает структуры таблиц
// promo_codes, promo_code_geo, promo_code_filters и used_promo_codes.
package promo

import "time"

// Code — промокод. Код нормализован (trim + нижний регистр) и уникален.
// Скидка никогда не правится «на месте» — код деактивируют и заводят новый.
type Code struct {
	Code      string     `db:"code"`
	Discount  int        `db:"discount"` // процент, 1..100
	ExpiresAt *time.Time `db:"expires_at"`
	Active    bool       `db:"active"`

	Geo     []GeoTarget     // пустой набор = действует везде
	Filters []ProductFilter // пустой набор = все товары
}

// GeoTarget — (город, район) промокода.
// District == nil означает «любой район этого города».
type GeoTarget struct {
	City     string  `db:"city"`
	District *string `db:"district"`
}

// FilterTarget — на что указывает фильтр: товар или категория.
type FilterTarget string

const (
	FilterItem     FilterTarget = "item"
	FilterCategory FilterTarget = "category"
)

// ProductFilter — ограничение промокода по каталогу.
// Allowed=true — белый список, Allowed=false — вето.
// Вето проверяется после белого списка и срабатывает безусловно.
type ProductFilter struct {
	Type    FilterTarget `db:"target_type"`
	Name    string       `db:"target_name"`
	Allowed bool         `db:"is_allowed"`
}

// Usage — факт применения промокода. Существование строки
// (user, code, item) и есть защита от повторного использования.
type Usage struct {
	UserID   int64   `db:"user_id"`
	Code     string  `db:"code"`
	ItemName string  `db:"item_name"`
	City     *string `db:"city"`
	District *string `db:"district"`
}
