// Package users — repository.go выполняет все операции с таблицами users,
// operations и bought_goods. Денежные поправки всегда относительные
// (balance = balance ± $n) — никаких read-modify-write на стороне Go,
// иначе конкурентные зачисления теряют обновления.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"serotonyl.ru/shop-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create регистрирует покупателя. На конфликте по telegram_id обновляет
// только username — referral_id после регистрации не трогаем.
func (r *Repository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (telegram_id, username, balance, referral_id, language)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username
	`
	_, err := r.db.Exec(ctx, query, u.TelegramID, u.Username, u.ReferralID, u.Language)
	if err != nil {
		return fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	return nil
}

// Get возвращает покупателя. Если не найден — common.ErrUserNotFound.
func (r *Repository) Get(ctx context.Context, telegramID int64) (*User, error) {
	query := `
		SELECT telegram_id, username, balance, referral_id, language, created_at
		FROM users
		WHERE telegram_id = $1
	`
	var u User
	err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&u.TelegramID, &u.Username, &u.Balance, &u.ReferralID, &u.Language, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя %d: %w", telegramID, err)
	}
	return &u, nil
}

// GetBalance возвращает текущий баланс пользователя.
func (r *Repository) GetBalance(ctx context.Context, telegramID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT balance FROM users WHERE telegram_id = $1`, telegramID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, common.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

// GetReferral возвращает реферала пользователя (nil, если его нет).
func (r *Repository) GetReferral(ctx context.Context, telegramID int64) (*int64, error) {
	var ref *int64
	err := r.db.QueryRow(ctx,
		`SELECT referral_id FROM users WHERE telegram_id = $1`, telegramID,
	).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения referral_id: %w", err)
	}
	return ref, nil
}

// Credit зачисляет сумму на баланс. Относительная атомарная поправка.
func (r *Repository) Credit(ctx context.Context, telegramID int64, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET balance = balance + $2 WHERE telegram_id = $1`,
		telegramID, amount,
	)
	if err != nil {
		return fmt.Errorf("ошибка зачисления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// Debit списывает сумму с баланса. Достаточность средств проверяется
// в том же UPDATE (balance >= $2) — отдельная проверка перед вызовом
// осталась только как подсказка пользователю, гонки она не закрывает.
func (r *Repository) Debit(ctx context.Context, telegramID int64, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET balance = balance - $2 WHERE telegram_id = $1 AND balance >= $2`,
		telegramID, amount,
	)
	if err != nil {
		return fmt.Errorf("ошибка списания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// либо нет пользователя, либо не хватило средств
		if _, gerr := r.Get(ctx, telegramID); gerr != nil {
			return gerr
		}
		return common.ErrInsufficientBalance
	}
	return nil
}

// DebitUpTo списывает min(balance, amount) одним запросом и возвращает
// фактически списанную сумму. Используется при расчёте покупки, где
// часть цены закрывается кредитами с баланса.
func (r *Repository) DebitUpTo(ctx context.Context, telegramID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var debited decimal.Decimal
	err := r.db.QueryRow(ctx, `
		WITH cur AS (
			SELECT balance FROM users WHERE telegram_id = $1 FOR UPDATE
		)
		UPDATE users
		SET balance = users.balance - LEAST(cur.balance, $2::numeric)
		FROM cur
		WHERE telegram_id = $1
		RETURNING LEAST(cur.balance, $2::numeric)
	`, telegramID, amount).Scan(&debited)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, common.ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("ошибка списания кредитов: %w", err)
	}
	return debited, nil
}

// RecordOperation пишет пополнение в историю операций.
func (r *Repository) RecordOperation(ctx context.Context, userID int64, amount decimal.Decimal, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO operations (user_id, amount, created_at) VALUES ($1, $2, $3)`,
		userID, amount, at,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи операции: %w", err)
	}
	return nil
}

// RecordPurchase пишет проданную позицию и возвращает её uuid-номер.
func (r *Repository) RecordPurchase(ctx context.Context, b *BoughtItem) (string, error) {
	uniqueID := uuid.NewString()
	_, err := r.db.Exec(ctx, `
		INSERT INTO bought_goods (unique_id, item_name, value, price, buyer_id, bought_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uniqueID, b.ItemName, b.Value, b.Price, b.BuyerID, b.BoughtAt)
	if err != nil {
		return "", fmt.Errorf("ошибка записи покупки: %w", err)
	}
	return uniqueID, nil
}

// CountPurchases возвращает счётчик покупок пользователя.
// Всегда считается из bought_goods — это authoritative-источник
// для уровня скидки и бесплатных спинов.
func (r *Repository) CountPurchases(ctx context.Context, telegramID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM bought_goods WHERE buyer_id = $1`, telegramID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта покупок: %w", err)
	}
	return count, nil
}
