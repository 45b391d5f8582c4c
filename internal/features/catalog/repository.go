// Package catalog — repository.go отвечает за операции с таблицами goods
// и categories. Каждая функция выполняет один SQL-запрос.
package catalog

import (
	"context"
	"errors"
	"fmt"

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

// GetItem возвращает товар по имени.
// Если не найден — common.ErrItemNotFound.
func (r *Repository) GetItem(ctx context.Context, name string) (*Item, error) {
	query := `
		SELECT name, description, price, category_name, delivery_description
		FROM goods
		WHERE name = $1
	`
	var it Item
	err := r.db.QueryRow(ctx, query, name).Scan(
		&it.Name, &it.Description, &it.Price, &it.CategoryName, &it.DeliveryDescription,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrItemNotFound
		}
		return nil, fmt.Errorf("ошибка чтения товара %q: %w", name, err)
	}
	return &it, nil
}

// GetCategoryParent возвращает родителя категории (nil у корневых).
func (r *Repository) GetCategoryParent(ctx context.Context, name string) (*string, error) {
	var parent *string
	err := r.db.QueryRow(ctx,
		`SELECT parent_name FROM categories WHERE name = $1`, name,
	).Scan(&parent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения категории %q: %w", name, err)
	}
	return parent, nil
}

// CreateCategory добавляет категорию (parent == nil для корневой).
func (r *Repository) CreateCategory(ctx context.Context, name string, parent *string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO categories (name, parent_name) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`, name, parent)
	if err != nil {
		return fmt.Errorf("ошибка создания категории: %w", err)
	}
	return nil
}

// CreateItem добавляет товар в каталог.
func (r *Repository) CreateItem(ctx context.Context, it *Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO goods (name, description, price, category_name, delivery_description)
		VALUES ($1, $2, $3, $4, $5)
	`, it.Name, it.Description, it.Price, it.CategoryName, it.DeliveryDescription)
	if err != nil {
		return fmt.Errorf("ошибка создания товара: %w", err)
	}
	return nil
}

// UpdateItemPrice меняет цену товара.
// Скидка промокода всегда считается от актуальной цены, поэтому
// кэшей, требующих инвалидации, у цены нет.
func (r *Repository) UpdateItemPrice(ctx context.Context, name string, price decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE goods SET price = $2 WHERE name = $1`, name, price)
	if err != nil {
		return fmt.Errorf("ошибка обновления цены: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrItemNotFound
	}
	return nil
}
