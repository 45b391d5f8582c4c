// Package notify — доставка сообщений пользователю по итогам расчёта.
// Координатор расчёта знает только интерфейс Sink: в проде за ним
// стоит Telegram, в тестах — заглушка.
package notify

import "context"

// Sink доставляет текстовые уведомления пользователю.
type Sink interface {
	// Send отправляет пользователю сообщение.
	Send(ctx context.Context, userID int64, text string) error
	// Delete убирает сообщение с реквизитами оплаты, когда счёт закрыт.
	Delete(ctx context.Context, userID int64, messageID int) error
}

// Nop — заглушка: молча принимает всё.
type Nop struct{}

func (Nop) Send(context.Context, int64, string) error { return nil }
func (Nop) Delete(context.Context, int64, int) error  { return nil }
