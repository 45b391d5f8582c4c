// Package settlement — watcher.go опрашивает провайдера по открытому
// счёту. Опрос — страховка на случай потерянного вебхука: оба пути
// сходятся в TryFinalize, и побеждает ровно один.
package settlement

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/common"
)

// statusExpired — синтетический статус для счёта, не оплаченного
// в срок. Провайдер его не присылал; классифицируется как неуспех.
const statusExpired = "expired"

// Track запускает наблюдателя за только что открытым счётом.
func (s *Service) Track(ctx context.Context, inv *PendingInvoice, pollInterval time.Duration) {
	go s.Watch(ctx, inv.OperationID, inv.ExpiresAt, pollInterval)
}

// Watch опрашивает статус счёта каждые pollInterval до финализации,
// истечения срока или отмены контекста. Запускается горутиной на
// каждый открытый счёт.
func (s *Service) Watch(ctx context.Context, operationID string, expiresAt time.Time, pollInterval time.Duration) {
	logger := log.WithField("operation_id", operationID)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.now().After(expiresAt) {
			err := s.TryFinalize(ctx, operationID, statusExpired)
			if err != nil && !errors.Is(err, common.ErrAlreadyHandled) {
				logger.WithError(err).Error("Ошибка закрытия просроченного счёта")
			}
			return
		}

		// счёт мог забрать вебхук — тогда опрашивать больше нечего
		inv, err := s.invoices.Get(ctx, operationID)
		if err != nil {
			logger.WithError(err).Warn("Ошибка чтения счёта при опросе")
			continue
		}
		if inv == nil {
			return
		}

		status, err := s.gateway.Status(ctx, operationID)
		if err != nil {
			// временный сбой провайдера не повод закрывать счёт
			logger.WithError(err).Warn("Ошибка опроса статуса платежа")
			continue
		}

		if Classify(status) == OutcomeInconclusive {
			continue
		}
		err = s.TryFinalize(ctx, operationID, status)
		if err != nil && !errors.Is(err, common.ErrAlreadyHandled) {
			logger.WithError(err).Error("Ошибка финализации счёта при опросе")
		}
		return
	}
}

// ResumePending перезапускает отслеживание открытых счетов после
// рестарта: просроченные закрываются сразу, по живым снова
// поднимаются наблюдатели.
func (s *Service) ResumePending(ctx context.Context, pollInterval time.Duration) error {
	invoices, err := s.invoices.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		if inv.Expired(s.now()) {
			err := s.TryFinalize(ctx, inv.OperationID, statusExpired)
			if err != nil && !errors.Is(err, common.ErrAlreadyHandled) {
				log.WithError(err).WithField("operation_id", inv.OperationID).
					Error("Ошибка закрытия просроченного счёта при старте")
			}
			continue
		}
		go s.Watch(ctx, inv.OperationID, inv.ExpiresAt, pollInterval)
	}
	if len(invoices) > 0 {
		log.WithField("count", len(invoices)).Info("Отслеживание открытых счетов возобновлено")
	}
	return nil
}

// SweepExpired закрывает все просроченные счета. Вызывается по крону
// как вторая страховка поверх наблюдателей.
func (s *Service) SweepExpired(ctx context.Context) {
	invoices, err := s.invoices.ListAll(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения счетов при разборе просрочки")
		return
	}
	for _, inv := range invoices {
		if !inv.Expired(s.now()) {
			continue
		}
		err := s.TryFinalize(ctx, inv.OperationID, statusExpired)
		if err != nil && !errors.Is(err, common.ErrAlreadyHandled) {
			log.WithError(err).WithField("operation_id", inv.OperationID).
				Error("Ошибка закрытия просроченного счёта")
		}
	}
}
