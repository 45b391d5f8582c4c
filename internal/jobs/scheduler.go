// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: разбор просроченных счетов
// и чистка окон монитора безопасности.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/features/settlement"
	"serotonyl.ru/shop-bot/internal/webhook"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	settle  *settlement.Service
	monitor *webhook.SecurityMonitor
}

func NewScheduler(settle *settlement.Service, monitor *webhook.SecurityMonitor) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		settle:  settle,
		monitor: monitor,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Вторая страховка поверх наблюдателей: вдруг горутина счёта
	// умерла вместе с процессом
	s.cron.AddFunc("*/5 * * * *", func() {
		log.Debug("[CRON] Разбор просроченных счетов")
		s.settle.SweepExpired(ctx)
	})

	// Чистим окна монитора, чтобы карты по IP не росли бесконечно
	s.cron.AddFunc("*/10 * * * *", func() {
		s.monitor.Cleanup()
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен")
}

// Stop останавливает планировщик, дожидаясь активных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
