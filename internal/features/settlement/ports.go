// Package settlement — ports.go описывает зависимости координатора.
// Каждый порт — минимальный срез чужого сервиса; в тестах все они
// подменяются фейками.
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/shop-bot/internal/features/catalog"
	"serotonyl.ru/shop-bot/internal/features/invoice"
	"serotonyl.ru/shop-bot/internal/features/promo"
	"serotonyl.ru/shop-bot/internal/features/stock"
	"serotonyl.ru/shop-bot/internal/features/users"
	"serotonyl.ru/shop-bot/internal/payments/nowpayments"
)

// invoiceStore — реестр незавершённых счетов.
type invoiceStore interface {
	Create(ctx context.Context, inv *invoice.Invoice) error
	Get(ctx context.Context, operationID string) (*invoice.Invoice, error)
	Claim(ctx context.Context, operationID string) (*invoice.Invoice, error)
	SetMessageID(ctx context.Context, operationID string, messageID int) error
	ListAll(ctx context.Context) ([]invoice.Invoice, error)
}

// ledger — балансы и история покупок.
type ledger interface {
	ApplyTopUp(ctx context.Context, userID int64, amount decimal.Decimal, at time.Time) (*users.TopUpResult, error)
	Credit(ctx context.Context, telegramID int64, amount decimal.Decimal) error
	DebitUpTo(ctx context.Context, telegramID int64, amount decimal.Decimal) (decimal.Decimal, error)
	GetBalance(ctx context.Context, telegramID int64) (decimal.Decimal, error)
	RecordPurchase(ctx context.Context, b *users.BoughtItem) (string, int, error)
}

// allocator — склад.
type allocator interface {
	Claim(ctx context.Context, itemName string) (*stock.Entry, error)
	Release(ctx context.Context, e *stock.Entry) error
	Available(ctx context.Context, itemName string) (bool, error)
}

// promoResolver — резолвер промокодов.
type promoResolver interface {
	Resolve(ctx context.Context, req promo.ResolveRequest) (*promo.Resolution, error)
	MarkUsed(ctx context.Context, u *promo.Usage) error
}

// catalogReader — каталог товаров.
type catalogReader interface {
	GetItem(ctx context.Context, name string) (*catalog.Item, error)
	AncestorChain(ctx context.Context, category string) ([]string, error)
}

// entitlements — колесо фортуны: доначисление спинов после покупки.
type entitlements interface {
	Evaluate(ctx context.Context, userID int64, purchaseCount int) (int, error)
}

// gateway — платёжный провайдер.
type gateway interface {
	CreatePayment(ctx context.Context, req *nowpayments.CreatePaymentRequest) (*nowpayments.Payment, error)
	Status(ctx context.Context, paymentID string) (string, error)
}
