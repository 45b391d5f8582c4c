// Package promo — repository.go выполняет операции с таблицами промокодов.
// Гео-таргеты и фильтры при обновлении перезаписываются целиком —
// частичная правка набора порождает несогласованные остатки.
package promo

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

// GetByCode возвращает активный промокод с гео-таргетами и фильтрами.
// Неактивные и несуществующие коды неразличимы для покупателя: nil, nil.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Code, error) {
	code = NormalizeCode(code)

	var c Code
	err := r.db.QueryRow(ctx, `
		SELECT code, discount, expires_at, active
		FROM promo_codes
		WHERE code = $1 AND active
	`, code).Scan(&c.Code, &c.Discount, &c.ExpiresAt, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения промокода: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT city, district FROM promo_code_geo WHERE code = $1`, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения гео-таргетов: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g GeoTarget
		if err := rows.Scan(&g.City, &g.District); err != nil {
			return nil, fmt.Errorf("ошибка сканирования гео-таргета: %w", err)
		}
		c.Geo = append(c.Geo, g)
	}

	frows, err := r.db.Query(ctx,
		`SELECT target_type, target_name, is_allowed FROM promo_code_filters WHERE code = $1`, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения фильтров: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var f ProductFilter
		if err := frows.Scan(&f.Type, &f.Name, &f.Allowed); err != nil {
			return nil, fmt.Errorf("ошибка сканирования фильтра: %w", err)
		}
		c.Filters = append(c.Filters, f)
	}

	return &c, nil
}

// IsUsed проверяет, применял ли пользователь этот код к этому товару.
func (r *Repository) IsUsed(ctx context.Context, userID int64, code, itemName string) (bool, error) {
	var used bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM used_promo_codes
			WHERE user_id = $1 AND code = $2 AND item_name = $3
		)
	`, userID, NormalizeCode(code), itemName).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки использования промокода: %w", err)
	}
	return used, nil
}

// MarkUsed фиксирует применение кода. Вызывается только при успешном
// расчёте продажи; брошенный на полпути промо-флоу следов не оставляет.
func (r *Repository) MarkUsed(ctx context.Context, u *Usage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO used_promo_codes (user_id, code, item_name, city, district)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, code, item_name) DO NOTHING
	`, u.UserID, NormalizeCode(u.Code), u.ItemName, u.City, u.District)
	if err != nil {
		return fmt.Errorf("ошибка отметки промокода: %w", err)
	}
	return nil
}

// Create заводит промокод вместе с таргетами и фильтрами.
func (r *Repository) Create(ctx context.Context, c *Code) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	code := NormalizeCode(c.Code)
	_, err = tx.Exec(ctx, `
		INSERT INTO promo_codes (code, discount, expires_at, active)
		VALUES ($1, $2, $3, TRUE)
	`, code, c.Discount, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания промокода: %w", err)
	}
	if err := replaceTargets(ctx, tx, code, c.Geo, c.Filters); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Deactivate выключает промокод, не удаляя историю использования.
func (r *Repository) Deactivate(ctx context.Context, code string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE promo_codes SET active = FALSE WHERE code = $1`, NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("ошибка деактивации промокода: %w", err)
	}
	return nil
}

// ReplaceTargets перезаписывает гео-таргеты и фильтры кода целиком.
func (r *Repository) ReplaceTargets(ctx context.Context, code string, geo []GeoTarget, filters []ProductFilter) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := replaceTargets(ctx, tx, NormalizeCode(code), geo, filters); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func replaceTargets(ctx context.Context, tx pgx.Tx, code string, geo []GeoTarget, filters []ProductFilter) error {
	if _, err := tx.Exec(ctx, `DELETE FROM promo_code_geo WHERE code = $1`, code); err != nil {
		return fmt.Errorf("ошибка очистки гео-таргетов: %w", err)
	}
	for _, g := range geo {
		if _, err := tx.Exec(ctx,
			`INSERT INTO promo_code_geo (code, city, district) VALUES ($1, $2, $3)`,
			code, g.City, g.District,
		); err != nil {
			return fmt.Errorf("ошибка записи гео-таргета: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM promo_code_filters WHERE code = $1`, code); err != nil {
		return fmt.Errorf("ошибка очистки фильтров: %w", err)
	}
	for _, f := range filters {
		if _, err := tx.Exec(ctx,
			`INSERT INTO promo_code_filters (code, target_type, target_name, is_allowed) VALUES ($1, $2, $3, $4)`,
			code, f.Type, f.Name, f.Allowed,
		); err != nil {
			return fmt.Errorf("ошибка записи фильтра: %w", err)
		}
	}
	return nil
}
