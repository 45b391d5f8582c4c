// Package invoice — repository.go выполняет операции с таблицей
// unfinished_operations.
package invoice

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

const invoiceColumns = `operation_id, user_id, kind, credits, item_name, price,
	promo_code, city, district, message_id, created_at, expires_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.OperationID, &inv.UserID, &inv.Kind, &inv.Credits,
		&inv.ItemName, &inv.Price, &inv.PromoCode, &inv.City, &inv.District,
		&inv.MessageID, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create регистрирует открытый счёт.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO unfinished_operations
			(operation_id, user_id, kind, credits, item_name, price,
			 promo_code, city, district, message_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, inv.OperationID, inv.UserID, inv.Kind, inv.Credits, inv.ItemName, inv.Price,
		inv.PromoCode, inv.City, inv.District, inv.MessageID, inv.CreatedAt, inv.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания счёта: %w", err)
	}
	return nil
}

// Get возвращает счёт без захвата. Нужен отслеживателю оплаты:
// пропавшая строка значит, что счёт уже финализировали.
func (r *Repository) Get(ctx context.Context, operationID string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM unfinished_operations WHERE operation_id = $1`,
		operationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения счёта: %w", err)
	}
	return inv, nil
}

// Claim атомарно забирает счёт на финализацию. Ровно один из
// конкурентов (вебхук, опрос, разборщик просрочки) получит строку;
// остальным вернётся nil, nil — для них счёт уже обработан.
func (r *Repository) Claim(ctx context.Context, operationID string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`DELETE FROM unfinished_operations WHERE operation_id = $1 RETURNING `+invoiceColumns,
		operationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка захвата счёта: %w", err)
	}
	return inv, nil
}

// SetMessageID привязывает к счёту сообщение с реквизитами оплаты —
// оно удаляется при закрытии счёта. Сообщение отправляется уже после
// создания строки, поэтому id дописывается отдельно.
func (r *Repository) SetMessageID(ctx context.Context, operationID string, messageID int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE unfinished_operations SET message_id = $2 WHERE operation_id = $1`,
		operationID, messageID)
	if err != nil {
		return fmt.Errorf("ошибка привязки сообщения к счёту: %w", err)
	}
	return nil
}

// ListAll возвращает все открытые счета. Используется разборщиком
// при старте: после рестарта у живых счетов перезапускается
// отслеживание, просроченные закрываются.
func (r *Repository) ListAll(ctx context.Context) ([]Invoice, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+invoiceColumns+` FROM unfinished_operations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения счетов: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения счетов: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}
