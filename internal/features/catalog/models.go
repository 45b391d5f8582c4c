// Package catalog — справочник товаров и категорий магазина.
// models.go описывает структуры таблиц goods и categories.
package catalog

import "github.com/shopspring/decimal"

// Item представляет позицию каталога.
// Имя товара уникально и служит ключом во всех таблицах магазина.
type Item struct {
	Name                string          `db:"name"`
	Description         string          `db:"description"`
	Price               decimal.Decimal `db:"price"`
	CategoryName        string          `db:"category_name"`
	DeliveryDescription *string         `db:"delivery_description"`
}

// Category — узел дерева категорий. Parent == nil у корневых.
type Category struct {
	Name   string  `db:"name"`
	Parent *string `db:"parent_name"`
}
