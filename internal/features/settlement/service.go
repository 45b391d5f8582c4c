// Package settlement — service.go содержит координатор расчёта.
// Он открывает счета у провайдера и финализирует их ровно один раз:
// строка счёта забирается атомарным DELETE, и побочные эффекты
// (зачисление, выдача товара, промокод, спины) делает только тот,
// кто строку получил. Вебхук, опрос статуса и разборщик просрочки
// сходятся в одном TryFinalize и между собой не координируются.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/common"
	"serotonyl.ru/shop-bot/internal/features/invoice"
	"serotonyl.ru/shop-bot/internal/features/promo"
	"serotonyl.ru/shop-bot/internal/features/users"
	"serotonyl.ru/shop-bot/internal/notify"
	"serotonyl.ru/shop-bot/internal/payments/nowpayments"
)

// Service — координатор расчёта.
type Service struct {
	invoices invoiceStore
	ledger   ledger
	stock    allocator
	promo    promoResolver
	catalog  catalogReader
	wheel    entitlements
	gateway  gateway
	sink     notify.Sink

	currency    string        // валюта цен магазина
	paymentWait time.Duration // срок жизни счёта
	topUpMin    decimal.Decimal
	topUpMax    decimal.Decimal
	ownerID     int64 // владельцу уходят уведомления о продажах

	now func() time.Time
}

// Options — настройки координатора.
type Options struct {
	Currency    string
	PaymentWait time.Duration
	TopUpMin    int64
	TopUpMax    int64
	OwnerID     int64
}

func NewService(
	invoices invoiceStore,
	ledger ledger,
	stock allocator,
	promo promoResolver,
	catalog catalogReader,
	wheel entitlements,
	gateway gateway,
	sink notify.Sink,
	opts Options,
) *Service {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Service{
		invoices:    invoices,
		ledger:      ledger,
		stock:       stock,
		promo:       promo,
		catalog:     catalog,
		wheel:       wheel,
		gateway:     gateway,
		sink:        sink,
		currency:    opts.Currency,
		paymentWait: opts.PaymentWait,
		topUpMin:    decimal.NewFromInt(opts.TopUpMin),
		topUpMax:    decimal.NewFromInt(opts.TopUpMax),
		ownerID:     opts.OwnerID,
		now:         time.Now,
	}
}

// PendingInvoice — открытый счёт: реквизиты для перевода.
// Settled == true — платить нечего, счёт уже проведён кредитами.
type PendingInvoice struct {
	OperationID string
	PayAddress  string
	PayAmount   decimal.Decimal
	PayCurrency string
	ExpiresAt   time.Time
	Settled     bool
}

// OpenTopUp открывает счёт на пополнение баланса.
func (s *Service) OpenTopUp(ctx context.Context, userID int64, amount decimal.Decimal, payCurrency string) (*PendingInvoice, error) {
	amount = common.Quantize(amount)
	if amount.LessThan(s.topUpMin) || amount.GreaterThan(s.topUpMax) {
		return nil, common.ErrInvalidAmount
	}

	payment, err := s.gateway.CreatePayment(ctx, &nowpayments.CreatePaymentRequest{
		PriceAmount:   amount,
		PriceCurrency: s.currency,
		PayCurrency:   payCurrency,
		Description:   "Пополнение баланса",
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := &invoice.Invoice{
		OperationID: payment.PaymentID.String(),
		UserID:      userID,
		Kind:        invoice.KindTopUp,
		Credits:     amount,
		Price:       amount,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.paymentWait),
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"operation_id": inv.OperationID,
		"user_id":      userID,
		"amount":       amount.StringFixed(2),
	}).Info("Открыт счёт на пополнение")

	return &PendingInvoice{
		OperationID: inv.OperationID,
		PayAddress:  payment.PayAddress,
		PayAmount:   payment.PayAmount,
		PayCurrency: payment.PayCurrency,
		ExpiresAt:   inv.ExpiresAt,
	}, nil
}

// PurchaseRequest — покупка товара через счёт провайдера.
// UseBalance — часть цены закрывается кредитами с баланса.
type PurchaseRequest struct {
	UserID      int64
	ItemName    string
	PromoCode   *string
	City        string
	District    *string
	PayCurrency string
	UseBalance  bool
}

// Quote — цена покупки до открытия счёта (для подтверждения в чате).
// Credits и Due — оценка по текущему балансу; фактическое списание
// происходит в OpenPurchase и может оказаться меньше.
type Quote struct {
	ItemName  string
	BasePrice decimal.Decimal
	Price     decimal.Decimal
	Credits   decimal.Decimal
	Due       decimal.Decimal
	Promo     *promo.Resolution
}

// PriceQuote считает финальную цену товара с учётом промокода,
// ничего не открывая и не мутируя.
func (s *Service) PriceQuote(ctx context.Context, req *PurchaseRequest) (*Quote, error) {
	item, err := s.catalog.GetItem(ctx, req.ItemName)
	if err != nil {
		return nil, err
	}

	q := &Quote{ItemName: item.Name, BasePrice: item.Price, Price: item.Price}
	if req.PromoCode != nil {
		chain, err := s.catalog.AncestorChain(ctx, item.CategoryName)
		if err != nil {
			return nil, err
		}
		res, err := s.promo.Resolve(ctx, promo.ResolveRequest{
			Code:          *req.PromoCode,
			UserID:        req.UserID,
			ItemName:      item.Name,
			CategoryChain: chain,
			BasePrice:     item.Price,
			City:          req.City,
			District:      req.District,
			Now:           s.now(),
		})
		if err != nil {
			return nil, err
		}
		q.Price = res.Price
		q.Promo = res
	}

	q.Due = q.Price
	if req.UseBalance {
		balance, err := s.ledger.GetBalance(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		q.Credits = decimal.Min(balance, q.Price)
		q.Due = q.Price.Sub(q.Credits)
	}
	return q, nil
}

// OpenPurchase открывает счёт на покупку товара. Цена и списанные
// кредиты фиксируются в строке счёта вместе с контекстом промокода:
// финализация ничего не пересчитывает. Если кредиты закрыли цену
// целиком, счёт проводится сразу, без платёжного провайдера.
func (s *Service) OpenPurchase(ctx context.Context, req *PurchaseRequest) (*PendingInvoice, error) {
	quote, err := s.PriceQuote(ctx, req)
	if err != nil {
		return nil, err
	}

	available, err := s.stock.Available(ctx, quote.ItemName)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, common.ErrOutOfStock
	}

	// кредиты списываются при открытии; любой неуспех счёта их вернёт
	credits := decimal.Zero
	due := quote.Price
	if req.UseBalance {
		credits, err = s.ledger.DebitUpTo(ctx, req.UserID, quote.Price)
		if err != nil {
			return nil, err
		}
		due = quote.Price.Sub(credits)
	}

	now := s.now()
	inv := &invoice.Invoice{
		UserID:    req.UserID,
		Kind:      invoice.KindPurchase,
		Credits:   credits,
		ItemName:  &quote.ItemName,
		Price:     quote.Price,
		CreatedAt: now,
		ExpiresAt: now.Add(s.paymentWait),
	}
	if quote.Promo != nil {
		inv.PromoCode = &quote.Promo.Code
		inv.City = quote.Promo.City
		inv.District = quote.Promo.District
	}

	if due.IsZero() {
		// баланс покрыл всё: проводим через ту же точку финализации,
		// что и оплаченный счёт
		inv.OperationID = "balance-" + uuid.NewString()
		if err := s.invoices.Create(ctx, inv); err != nil {
			s.refundCredits(ctx, inv)
			return nil, err
		}
		if err := s.TryFinalize(ctx, inv.OperationID, "paid"); err != nil {
			return nil, err
		}
		return &PendingInvoice{
			OperationID: inv.OperationID,
			PayAmount:   decimal.Zero,
			ExpiresAt:   inv.ExpiresAt,
			Settled:     true,
		}, nil
	}

	payment, err := s.gateway.CreatePayment(ctx, &nowpayments.CreatePaymentRequest{
		PriceAmount:   due,
		PriceCurrency: s.currency,
		PayCurrency:   req.PayCurrency,
		Description:   "Покупка: " + quote.ItemName,
	})
	if err != nil {
		s.refundCredits(ctx, inv)
		return nil, err
	}

	inv.OperationID = payment.PaymentID.String()
	if err := s.invoices.Create(ctx, inv); err != nil {
		s.refundCredits(ctx, inv)
		return nil, err
	}

	log.WithFields(log.Fields{
		"operation_id": inv.OperationID,
		"user_id":      req.UserID,
		"item":         quote.ItemName,
		"price":        quote.Price.StringFixed(2),
		"credits":      credits.StringFixed(2),
		"due":          due.StringFixed(2),
	}).Info("Открыт счёт на покупку")

	return &PendingInvoice{
		OperationID: inv.OperationID,
		PayAddress:  payment.PayAddress,
		PayAmount:   payment.PayAmount,
		PayCurrency: payment.PayCurrency,
		ExpiresAt:   inv.ExpiresAt,
	}, nil
}

// refundCredits возвращает на баланс кредиты, списанные при открытии
// счёта, который не дошёл до успешной финализации.
func (s *Service) refundCredits(ctx context.Context, inv *invoice.Invoice) {
	if inv.Kind != invoice.KindPurchase || !inv.Credits.IsPositive() {
		return
	}
	if err := s.ledger.Credit(ctx, inv.UserID, inv.Credits); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"operation_id": inv.OperationID,
			"user_id":      inv.UserID,
			"credits":      inv.Credits.StringFixed(2),
		}).Error("Не удалось вернуть кредиты на баланс")
		return
	}
	log.WithFields(log.Fields{
		"operation_id": inv.OperationID,
		"user_id":      inv.UserID,
		"credits":      inv.Credits.StringFixed(2),
	}).Info("Кредиты возвращены на баланс")
}

// AttachMessage привязывает к счёту сообщение с реквизитами.
func (s *Service) AttachMessage(ctx context.Context, operationID string, messageID int) error {
	return s.invoices.SetMessageID(ctx, operationID, messageID)
}

// Cancel закрывает счёт по просьбе пользователя, без оглядки на
// провайдера. Если строку уже забрал кто-то другой — ErrAlreadyHandled.
func (s *Service) Cancel(ctx context.Context, operationID string) error {
	inv, err := s.invoices.Claim(ctx, operationID)
	if err != nil {
		return err
	}
	if inv == nil {
		return common.ErrAlreadyHandled
	}
	s.cleanupMessage(ctx, inv)
	s.refundCredits(ctx, inv)
	log.WithFields(log.Fields{
		"operation_id": operationID,
		"user_id":      inv.UserID,
	}).Info("Счёт отменён пользователем")
	return nil
}

// TryFinalize — единая точка финализации. Статус классифицируется;
// промежуточный исход ничего не делает. Иначе счёт захватывается
// атомарно, и захвативший проводит расчёт. Конкуренту, опоздавшему
// к той же строке, возвращается ErrAlreadyHandled.
func (s *Service) TryFinalize(ctx context.Context, operationID, status string) error {
	outcome := Classify(status)
	if outcome == OutcomeInconclusive {
		return nil
	}

	inv, err := s.invoices.Claim(ctx, operationID)
	if err != nil {
		return err
	}
	if inv == nil {
		return common.ErrAlreadyHandled
	}

	s.cleanupMessage(ctx, inv)

	if outcome == OutcomeFailure {
		s.refundCredits(ctx, inv)
		log.WithFields(log.Fields{
			"operation_id": operationID,
			"user_id":      inv.UserID,
			"status":       status,
		}).Info("Счёт закрыт без оплаты")
		s.notify(ctx, inv.UserID, "Счёт не был оплачен и закрыт. Если вы переводили деньги — обратитесь в поддержку.")
		return nil
	}

	switch inv.Kind {
	case invoice.KindTopUp:
		return s.finalizeTopUp(ctx, inv)
	case invoice.KindPurchase:
		return s.finalizePurchase(ctx, inv)
	default:
		return fmt.Errorf("неизвестный вид счёта %q", inv.Kind)
	}
}

func (s *Service) finalizeTopUp(ctx context.Context, inv *invoice.Invoice) error {
	res, err := s.ledger.ApplyTopUp(ctx, inv.UserID, inv.Credits, s.now())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"operation_id": inv.OperationID,
		"user_id":      inv.UserID,
		"amount":       res.Amount.StringFixed(2),
	}).Info("Пополнение проведено")
	s.notify(ctx, inv.UserID, fmt.Sprintf("Баланс пополнен на %s.", common.FormatAmount(res.Amount)))
	s.notifyOwner(ctx, fmt.Sprintf("Пополнение: пользователь %d, %s.", inv.UserID, common.FormatAmount(res.Amount)))
	return nil
}

func (s *Service) finalizePurchase(ctx context.Context, inv *invoice.Invoice) error {
	if inv.ItemName == nil {
		return fmt.Errorf("счёт %s на покупку без товара", inv.OperationID)
	}
	itemName := *inv.ItemName

	entry, err := s.stock.Claim(ctx, itemName)
	if errors.Is(err, common.ErrOutOfStock) {
		// товар разобрали, пока счёт оплачивался: деньги не пропадают,
		// оплаченная сумма уходит на баланс
		if err := s.ledger.Credit(ctx, inv.UserID, inv.Price); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"operation_id": inv.OperationID,
				"user_id":      inv.UserID,
				"amount":       inv.Price.StringFixed(2),
			}).Error("Не удалось компенсировать оплату на баланс")
			return err
		}
		log.WithFields(log.Fields{
			"operation_id": inv.OperationID,
			"user_id":      inv.UserID,
			"item":         itemName,
			"amount":       inv.Price.StringFixed(2),
		}).Warn("Товар закончился после оплаты, сумма зачислена на баланс")
		s.notify(ctx, inv.UserID, fmt.Sprintf(
			"Товар «%s» закончился, пока счёт оплачивался. Сумма %s зачислена на ваш баланс.",
			itemName, common.FormatAmount(inv.Price)))
		return nil
	}
	if err != nil {
		return err
	}

	uniqueID, count, err := s.ledger.RecordPurchase(ctx, &users.BoughtItem{
		ItemName: itemName,
		Value:    entry.Value,
		Price:    inv.Price,
		BuyerID:  inv.UserID,
		BoughtAt: s.now(),
	})
	if err != nil {
		// позиция уже снята со склада — возвращаем, продажа не состоялась
		if relErr := s.stock.Release(ctx, entry); relErr != nil {
			log.WithError(relErr).WithField("item", itemName).Error("Не удалось вернуть позицию на склад")
		}
		return err
	}

	if inv.PromoCode != nil {
		if err := s.promo.MarkUsed(ctx, &promo.Usage{
			UserID:   inv.UserID,
			Code:     *inv.PromoCode,
			ItemName: itemName,
			City:     inv.City,
			District: inv.District,
		}); err != nil {
			// продажа уже проведена, повтор промокода хуже потери отметки не сделает
			log.WithError(err).WithFields(log.Fields{
				"operation_id": inv.OperationID,
				"promo":        *inv.PromoCode,
			}).Warn("Не удалось отметить промокод использованным")
		}
	}

	granted, err := s.wheel.Evaluate(ctx, inv.UserID, count)
	if err != nil {
		log.WithError(err).WithField("user_id", inv.UserID).Warn("Не удалось начислить спины")
	} else if granted > 0 {
		s.notify(ctx, inv.UserID, "Вам начислен бесплатный спин колеса фортуны!")
	}

	log.WithFields(log.Fields{
		"operation_id": inv.OperationID,
		"user_id":      inv.UserID,
		"item":         itemName,
		"unique_id":    uniqueID,
		"price":        inv.Price.StringFixed(2),
	}).Info("Покупка проведена")

	s.notify(ctx, inv.UserID, fmt.Sprintf(
		"Оплата получена!\n\nВаш товар «%s»:\n%s\n\nНомер покупки: %s",
		itemName, entry.Value, uniqueID))
	s.notifyOwner(ctx, fmt.Sprintf("Продажа: «%s» за %s, покупатель %d.",
		itemName, common.FormatAmount(inv.Price), inv.UserID))
	return nil
}

// cleanupMessage убирает сообщение с реквизитами закрытого счёта.
func (s *Service) cleanupMessage(ctx context.Context, inv *invoice.Invoice) {
	if inv.MessageID == nil {
		return
	}
	_ = s.sink.Delete(ctx, inv.UserID, *inv.MessageID)
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	if err := s.sink.Send(ctx, userID, text); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Уведомление не доставлено")
	}
}

func (s *Service) notifyOwner(ctx context.Context, text string) {
	if s.ownerID == 0 {
		return
	}
	s.notify(ctx, s.ownerID, text)
}
