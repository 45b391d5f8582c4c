// Package stock — repository.go выполняет операции с таблицей item_values.
// Захват конечной позиции — один атомарный DELETE ... RETURNING:
// два конкурентных покупателя не могут получить одну и ту же строку.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ClaimFinite атомарно забирает одну конечную позицию товара.
// FOR UPDATE SKIP LOCKED не даёт двум транзакциям выбрать одну строку;
// удаление и есть продажа. Возвращает nil, nil если позиций нет.
func (r *Repository) ClaimFinite(ctx context.Context, itemName string) (*Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx, `
		DELETE FROM item_values
		WHERE id = (
			SELECT id FROM item_values
			WHERE item_name = $1 AND NOT is_infinity
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, item_name, value, is_infinity
	`, itemName).Scan(&e.ID, &e.ItemName, &e.Value, &e.IsInfinity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка захвата позиции: %w", err)
	}
	return &e, nil
}

// GetInfinite возвращает бесконечную позицию товара, если она есть.
// Строка не удаляется — бесконечные позиции продаются без лимита.
func (r *Repository) GetInfinite(ctx context.Context, itemName string) (*Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx, `
		SELECT id, item_name, value, is_infinity
		FROM item_values
		WHERE item_name = $1 AND is_infinity
		LIMIT 1
	`, itemName).Scan(&e.ID, &e.ItemName, &e.Value, &e.IsInfinity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения бесконечной позиции: %w", err)
	}
	return &e, nil
}

// Insert добавляет позицию на склад (и при пополнении, и при возврате).
func (r *Repository) Insert(ctx context.Context, e *Entry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO item_values (item_name, value, is_infinity)
		VALUES ($1, $2, $3)
	`, e.ItemName, e.Value, e.IsInfinity)
	if err != nil {
		return fmt.Errorf("ошибка добавления позиции: %w", err)
	}
	return nil
}

// CountByItem возвращает остаток конечных позиций товара.
func (r *Repository) CountByItem(ctx context.Context, itemName string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM item_values WHERE item_name = $1 AND NOT is_infinity`,
		itemName,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта остатков: %w", err)
	}
	return count, nil
}
