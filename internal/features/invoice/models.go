// Package invoice — реестр незавершённых счетов. Строка в таблице
// означает «счёт открыт и ещё не обработан»; финализация забирает
// строку атомарным DELETE, и кто забрал — тот и проводит расчёт.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Вид счёта: пополнение баланса или прямая покупка товара.
const (
	KindTopUp    = "topup"
	KindPurchase = "purchase"
)

// Invoice — открытый счёт у платёжного провайдера.
// Для покупки заполнены ItemName/Price и контекст промокода,
// для пополнения — только Credits.
type Invoice struct {
	OperationID string          `db:"operation_id"`
	UserID      int64           `db:"user_id"`
	Kind        string          `db:"kind"`
	Credits     decimal.Decimal `db:"credits"`
	ItemName    *string         `db:"item_name"`
	Price       decimal.Decimal `db:"price"`
	PromoCode   *string         `db:"promo_code"`
	City        *string         `db:"city"`
	District    *string         `db:"district"`
	MessageID   *int            `db:"message_id"`
	CreatedAt   time.Time       `db:"created_at"`
	ExpiresAt   time.Time       `db:"expires_at"`
}

// Expired сообщает, вышел ли срок оплаты счёта.
func (i *Invoice) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
