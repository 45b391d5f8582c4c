// Package main — точка входа магазина.
// Загружает конфигурацию, инициализирует приложение и запускает
// IPN-сервер с планировщиком. Поддерживает graceful shutdown
// по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/app"
	"serotonyl.ru/shop-bot/internal/config"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	// .env нужен только для локального запуска, в Docker его нет
	if err := godotenv.Load(); err != nil {
		log.Debug(".env не найден, используем переменные окружения")
	}

	log.Info("=== Магазин запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем приложение (БД, сервисы, IPN-сервер, планировщик)
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.DB.Close()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить приложение")
	}
	defer application.Scheduler.Stop()

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("=== Магазин готов к работе ===")

	// Ждём сигнала остановки
	sig := <-quit
	log.Infof("Получен сигнал %s, останавливаемся...", sig)

	// Отменяем контекст — наблюдатели счетов начнут завершаться
	cancel()

	// IPN-серверу даём дорешать активные запросы
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := application.IPN.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("IPN-сервер остановлен с ошибкой")
	}

	log.Info("=== Магазин остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
