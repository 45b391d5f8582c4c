// Package app инициализирует все компоненты магазина.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы,
// координатор расчёта, IPN-сервер и планировщик.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/shop-bot/internal/config"
	"serotonyl.ru/shop-bot/internal/db/postgres"
	"serotonyl.ru/shop-bot/internal/features/catalog"
	"serotonyl.ru/shop-bot/internal/features/invoice"
	"serotonyl.ru/shop-bot/internal/features/promo"
	"serotonyl.ru/shop-bot/internal/features/settlement"
	"serotonyl.ru/shop-bot/internal/features/stock"
	"serotonyl.ru/shop-bot/internal/features/users"
	"serotonyl.ru/shop-bot/internal/features/wheel"
	"serotonyl.ru/shop-bot/internal/jobs"
	"serotonyl.ru/shop-bot/internal/notify"
	"serotonyl.ru/shop-bot/internal/payments/nowpayments"
	"serotonyl.ru/shop-bot/internal/webhook"
)

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
	Scheduler *jobs.Scheduler
	IPN       *webhook.Server

	Users      *users.Service
	Catalog    *catalog.Service
	Stock      *stock.Service
	Promo      *promo.Service
	Wheel      *wheel.Service
	Settlement *settlement.Service

	cfg *config.Config
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Репозитории ===
	userRepo := users.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	stockRepo := stock.NewRepository(pool)
	promoRepo := promo.NewRepository(pool)
	invoiceRepo := invoice.NewRepository(pool)
	wheelRepo := wheel.NewRepository(pool)

	// === 4. Сервисы ===
	userService := users.NewService(userRepo, cfg.ReferralPercent)
	catalogService := catalog.NewService(catalogRepo)
	stockService := stock.NewService(stockRepo)
	promoService := promo.NewService(promoRepo)
	wheelService := wheel.NewService(wheelRepo, cfg.WheelSpinEvery)

	// === 5. Платёжный провайдер и уведомления ===
	gateway := nowpayments.NewClient(cfg.NowPaymentsAPIKey, cfg.NowPaymentsBaseURL)
	sink := notify.NewTelegram(botAPI)

	// === 6. Координатор расчёта ===
	settleService := settlement.NewService(
		invoiceRepo, userService, stockService, promoService,
		catalogService, wheelService, gateway, sink,
		settlement.Options{
			Currency:    cfg.Currency,
			PaymentWait: cfg.PaymentWait,
			TopUpMin:    cfg.TopUpMin,
			TopUpMax:    cfg.TopUpMax,
			OwnerID:     cfg.OwnerID,
		},
	)

	// === 7. IPN-сервер ===
	monitor := webhook.NewSecurityMonitor(webhook.SecurityConfig{
		RateLimit:        cfg.IPNRateLimit,
		RateWindow:       cfg.IPNRateWindow,
		FailureLimit:     cfg.IPNFailureLimit,
		FailureWindow:    cfg.IPNFailureWindow,
		AnomalyThreshold: cfg.IPNAnomalyThreshold,
		BlockDuration:    cfg.IPNBlockDuration,
	})
	ipnServer := webhook.NewServer(cfg.IPNListenAddr, settleService, monitor, cfg.NowPaymentsIPNSecret)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(settleService, monitor)

	return &App{
		DB:         pool,
		BotAPI:     botAPI,
		Scheduler:  scheduler,
		IPN:        ipnServer,
		Users:      userService,
		Catalog:    catalogService,
		Stock:      stockService,
		Promo:      promoService,
		Wheel:      wheelService,
		Settlement: settleService,
		cfg:        cfg,
	}, nil
}

// Start запускает фоновые компоненты: планировщик, IPN-сервер и
// возобновляет отслеживание счетов, открытых до рестарта.
func (a *App) Start(ctx context.Context) error {
	a.Scheduler.Start(ctx)

	if err := a.Settlement.ResumePending(ctx, a.cfg.PaymentPollInterval); err != nil {
		return fmt.Errorf("ошибка возобновления счетов: %w", err)
	}

	go func() {
		if err := a.IPN.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("IPN-сервер остановился с ошибкой")
		}
	}()
	return nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.InitMigrations(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Catalog},
		{3, migration003Stock},
		{4, migration004Invoices},
		{5, migration005Promo},
		{6, migration006Wheel},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}
	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    telegram_id BIGINT PRIMARY KEY,
    username VARCHAR(255),
    balance NUMERIC(12,2) NOT NULL DEFAULT 0,
    referral_id BIGINT,
    language VARCHAR(8) DEFAULT 'ru',
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS operations (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(telegram_id),
    amount NUMERIC(12,2) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_operations_user_id ON operations(user_id);
CREATE TABLE IF NOT EXISTS bought_goods (
    id BIGSERIAL PRIMARY KEY,
    unique_id VARCHAR(36) UNIQUE NOT NULL,
    item_name VARCHAR(255) NOT NULL,
    value TEXT NOT NULL,
    price NUMERIC(12,2) NOT NULL,
    buyer_id BIGINT NOT NULL REFERENCES users(telegram_id),
    bought_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bought_goods_buyer_id ON bought_goods(buyer_id);
`

var migration002Catalog = `
CREATE TABLE IF NOT EXISTS categories (
    name VARCHAR(255) PRIMARY KEY,
    parent_name VARCHAR(255) REFERENCES categories(name)
);
CREATE TABLE IF NOT EXISTS goods (
    name VARCHAR(255) PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    price NUMERIC(12,2) NOT NULL,
    category_name VARCHAR(255) NOT NULL REFERENCES categories(name),
    delivery_description TEXT
);
CREATE INDEX IF NOT EXISTS idx_goods_category ON goods(category_name);
`

var migration003Stock = `
CREATE TABLE IF NOT EXISTS item_values (
    id BIGSERIAL PRIMARY KEY,
    item_name VARCHAR(255) NOT NULL REFERENCES goods(name),
    value TEXT NOT NULL,
    is_infinity BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_item_values_item_name ON item_values(item_name);
`

var migration004Invoices = `
CREATE TABLE IF NOT EXISTS unfinished_operations (
    operation_id VARCHAR(64) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    kind VARCHAR(16) NOT NULL,
    credits NUMERIC(12,2) NOT NULL DEFAULT 0,
    item_name VARCHAR(255),
    price NUMERIC(12,2) NOT NULL DEFAULT 0,
    promo_code VARCHAR(255),
    city VARCHAR(255),
    district VARCHAR(255),
    message_id INTEGER,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_unfinished_operations_expires ON unfinished_operations(expires_at);
`

var migration005Promo = `
CREATE TABLE IF NOT EXISTS promo_codes (
    code VARCHAR(255) PRIMARY KEY,
    discount INTEGER NOT NULL CHECK (discount BETWEEN 1 AND 100),
    expires_at TIMESTAMP,
    active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS promo_code_geo (
    id BIGSERIAL PRIMARY KEY,
    code VARCHAR(255) NOT NULL REFERENCES promo_codes(code) ON DELETE CASCADE,
    city VARCHAR(255) NOT NULL,
    district VARCHAR(255)
);
CREATE INDEX IF NOT EXISTS idx_promo_code_geo_code ON promo_code_geo(code);
CREATE TABLE IF NOT EXISTS promo_code_filters (
    id BIGSERIAL PRIMARY KEY,
    code VARCHAR(255) NOT NULL REFERENCES promo_codes(code) ON DELETE CASCADE,
    target_type VARCHAR(16) NOT NULL,
    target_name VARCHAR(255) NOT NULL,
    is_allowed BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_promo_code_filters_code ON promo_code_filters(code);
CREATE TABLE IF NOT EXISTS used_promo_codes (
    user_id BIGINT NOT NULL,
    code VARCHAR(255) NOT NULL,
    item_name VARCHAR(255) NOT NULL,
    city VARCHAR(255),
    district VARCHAR(255),
    used_at TIMESTAMP DEFAULT NOW(),
    PRIMARY KEY (user_id, code, item_name)
);
`

var migration006Wheel = `
CREATE TABLE IF NOT EXISTS wheel_spins (
    user_id BIGINT PRIMARY KEY,
    spins INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS wheel_wins (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    prize VARCHAR(255) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_wheel_wins_user_id ON wheel_wins(user_id);
CREATE TABLE IF NOT EXISTS wheel_prizes (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS wheel_bans (
    user_id BIGINT PRIMARY KEY
);
`
