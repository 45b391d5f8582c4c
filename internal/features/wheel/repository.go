// Package wheel — repository.go выполняет операции с таблицами
// wheel_spins, wheel_wins, wheel_prizes и wheel_bans.
package wheel

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

// Spins возвращает количество доступных спинов пользователя.
func (r *Repository) Spins(ctx context.Context, userID int64) (int, error) {
	var spins int
	err := r.db.QueryRow(ctx,
		`SELECT spins FROM wheel_spins WHERE user_id = $1`, userID,
	).Scan(&spins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка чтения спинов: %w", err)
	}
	return spins, nil
}

// AddSpins начисляет спины относительным инкрементом.
func (r *Repository) AddSpins(ctx context.Context, userID int64, n int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wheel_spins (user_id, spins) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET spins = wheel_spins.spins + $2
	`, userID, n)
	if err != nil {
		return fmt.Errorf("ошибка начисления спинов: %w", err)
	}
	return nil
}

// ConsumeSpin атомарно списывает один спин. false — спинов не было.
func (r *Repository) ConsumeSpin(ctx context.Context, userID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE wheel_spins SET spins = spins - 1
		WHERE user_id = $1 AND spins > 0
	`, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка списания спина: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearSpins обнуляет спины пользователя.
func (r *Repository) ClearSpins(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE wheel_spins SET spins = 0 WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка обнуления спинов: %w", err)
	}
	return nil
}

// CountWins возвращает число выигрышей пользователя.
func (r *Repository) CountWins(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM wheel_wins WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта выигрышей: %w", err)
	}
	return count, nil
}

// RecordWin записывает выигрыш.
func (r *Repository) RecordWin(ctx context.Context, userID int64, prize string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wheel_wins (user_id, prize, created_at) VALUES ($1, $2, NOW())
	`, userID, prize)
	if err != nil {
		return fmt.Errorf("ошибка записи выигрыша: %w", err)
	}
	return nil
}

// ActivePrizes возвращает активный пул призов.
func (r *Repository) ActivePrizes(ctx context.Context) ([]Prize, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, active FROM wheel_prizes WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения призов: %w", err)
	}
	defer rows.Close()

	var prizes []Prize
	for rows.Next() {
		var p Prize
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("ошибка чтения призов: %w", err)
		}
		prizes = append(prizes, p)
	}
	return prizes, rows.Err()
}

// CreatePrize добавляет приз в пул.
func (r *Repository) CreatePrize(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO wheel_prizes (name, active) VALUES ($1, TRUE)`, name)
	if err != nil {
		return fmt.Errorf("ошибка добавления приза: %w", err)
	}
	return nil
}

// DeactivatePrize убирает приз из пула.
func (r *Repository) DeactivatePrize(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE wheel_prizes SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка отключения приза: %w", err)
	}
	return nil
}

// IsBanned проверяет, закрыто ли колесо для пользователя.
func (r *Repository) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wheel_bans WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки бана: %w", err)
	}
	return exists, nil
}

// Ban закрывает колесо для пользователя.
func (r *Repository) Ban(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wheel_bans (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ошибка бана: %w", err)
	}
	return nil
}

// Unban снова открывает колесо для пользователя.
func (r *Repository) Unban(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM wheel_bans WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка разбана: %w", err)
	}
	return nil
}
