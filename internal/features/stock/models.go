// Package stock — склад: по одной строке item_values на продаваемую
// единицу товара. Продажа конечной позиции = удаление её строки.
package stock

// Entry — одна продаваемая единица товара.
// Value — содержимое доставки (текст или путь к файлу).
// Бесконечные позиции (IsInfinity) продаются без удаления и без лимита.
type Entry struct {
	ID         int64  `db:"id"`
	ItemName   string `db:"item_name"`
	Value      string `db:"value"`
	IsInfinity bool   `db:"is_infinity"`
}
