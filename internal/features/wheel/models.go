// Package wheel — колесо фортуны: спины начисляются за каждые
// пять покупок, приз выбирается из активного пула.
package wheel

import "time"

// Prize — позиция пула призов. Неактивные призы не выпадают,
// и пока пул пуст, спины не начисляются вовсе.
type Prize struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Active bool   `db:"active"`
}

// Win — выигрыш пользователя.
type Win struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Prize     string    `db:"prize"`
	CreatedAt time.Time `db:"created_at"`
}
