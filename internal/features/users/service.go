// Package users — service.go содержит бизнес-логику леджера баланса:
// зачисления, списания, реферальная комиссия с пополнений.
package users

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/common"
)

// store — операции с БД, которые нужны сервису.
// Реализуется *Repository; в тестах подменяется фейком.
type store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, telegramID int64) (*User, error)
	GetBalance(ctx context.Context, telegramID int64) (decimal.Decimal, error)
	GetReferral(ctx context.Context, telegramID int64) (*int64, error)
	Credit(ctx context.Context, telegramID int64, amount decimal.Decimal) error
	Debit(ctx context.Context, telegramID int64, amount decimal.Decimal) error
	DebitUpTo(ctx context.Context, telegramID int64, amount decimal.Decimal) (decimal.Decimal, error)
	RecordOperation(ctx context.Context, userID int64, amount decimal.Decimal, at time.Time) error
	RecordPurchase(ctx context.Context, b *BoughtItem) (string, error)
	CountPurchases(ctx context.Context, telegramID int64) (int, error)
}

// Service управляет балансами покупателей.
type Service struct {
	repo            store
	referralPercent int
}

func NewService(repo store, referralPercent int) *Service {
	return &Service{repo: repo, referralPercent: referralPercent}
}

// Register создаёт покупателя (идемпотентно).
func (s *Service) Register(ctx context.Context, u *User) error {
	return s.repo.Create(ctx, u)
}

// Get возвращает покупателя.
func (s *Service) Get(ctx context.Context, telegramID int64) (*User, error) {
	return s.repo.Get(ctx, telegramID)
}

// GetBalance возвращает текущий баланс.
func (s *Service) GetBalance(ctx context.Context, telegramID int64) (decimal.Decimal, error) {
	return s.repo.GetBalance(ctx, telegramID)
}

// Credit зачисляет сумму на баланс.
func (s *Service) Credit(ctx context.Context, telegramID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return common.ErrInvalidAmount
	}
	return s.repo.Credit(ctx, telegramID, common.Quantize(amount))
}

// Debit списывает сумму с баланса (атомарно, с охраной достаточности).
func (s *Service) Debit(ctx context.Context, telegramID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return common.ErrInvalidAmount
	}
	return s.repo.Debit(ctx, telegramID, common.Quantize(amount))
}

// DebitUpTo списывает не больше amount и не больше остатка,
// возвращает фактически списанное.
func (s *Service) DebitUpTo(ctx context.Context, telegramID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, common.ErrInvalidAmount
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	return s.repo.DebitUpTo(ctx, telegramID, common.Quantize(amount))
}

// TopUpResult — результат зачисления пополнения.
type TopUpResult struct {
	Amount             decimal.Decimal
	ReferralID         *int64
	ReferralCommission decimal.Decimal // ноль, если комиссии не было
}

// ApplyTopUp зачисляет оплаченное пополнение: кредит баланса, запись в
// историю операций и, если у пользователя есть реферал и процент
// комиссии ненулевой, кредит рефереру round(amount × percent / 100).
func (s *Service) ApplyTopUp(ctx context.Context, userID int64, amount decimal.Decimal, at time.Time) (*TopUpResult, error) {
	amount = common.Quantize(amount)
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}

	if err := s.repo.Credit(ctx, userID, amount); err != nil {
		return nil, err
	}
	if err := s.repo.RecordOperation(ctx, userID, amount, at); err != nil {
		return nil, err
	}

	res := &TopUpResult{Amount: amount, ReferralCommission: decimal.Zero}

	referral, err := s.repo.GetReferral(ctx, userID)
	if err != nil {
		// пополнение уже зачислено — комиссию не теряем молча, но и не откатываем
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось прочитать реферала")
		return res, nil
	}
	if referral == nil || s.referralPercent == 0 {
		return res, nil
	}

	commission := common.Commission(amount, s.referralPercent)
	if !commission.IsPositive() {
		return res, nil
	}
	if err := s.repo.Credit(ctx, *referral, commission); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":  userID,
			"referral": *referral,
		}).Warn("Не удалось зачислить реферальную комиссию")
		return res, nil
	}

	res.ReferralID = referral
	res.ReferralCommission = commission

	log.WithFields(log.Fields{
		"user_id":    userID,
		"amount":     amount.StringFixed(2),
		"referral":   *referral,
		"commission": commission.String(),
	}).Info("Пополнение зачислено")
	return res, nil
}

// RecordPurchase фиксирует проданную позицию и возвращает её номер
// и новый счётчик покупок.
func (s *Service) RecordPurchase(ctx context.Context, b *BoughtItem) (string, int, error) {
	uniqueID, err := s.repo.RecordPurchase(ctx, b)
	if err != nil {
		return "", 0, err
	}
	count, err := s.repo.CountPurchases(ctx, b.BuyerID)
	if err != nil {
		return uniqueID, 0, err
	}
	return uniqueID, count, nil
}

// CountPurchases возвращает счётчик покупок пользователя.
func (s *Service) CountPurchases(ctx context.Context, telegramID int64) (int, error) {
	return s.repo.CountPurchases(ctx, telegramID)
}
