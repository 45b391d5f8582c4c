// Package config загружает конфигурацию магазина из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// ID владельца магазина — ему идут уведомления о продажах и пополнениях
	OwnerID int64 `envconfig:"OWNER_ID"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"shopuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"telegram_shop"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- NOWPayments ---
	NowPaymentsAPIKey string `envconfig:"NOWPAYMENTS_API_KEY"`
	// Секрет подписи IPN-колбэков. Пустой секрет = подпись не проверяется
	// (режим песочницы провайдера).
	NowPaymentsIPNSecret string `envconfig:"NOWPAYMENTS_IPN_SECRET"`
	NowPaymentsBaseURL   string `envconfig:"NOWPAYMENTS_BASE_URL" default:"https://api.nowpayments.io"`

	// --- IPN HTTP server ---
	IPNListenAddr string `envconfig:"IPN_LISTEN_ADDR" default:":8080"`
	// Лимиты на IP: окно запросов и порог аномалии — независимо от логики счетов
	IPNRateLimit        int           `envconfig:"IPN_RATE_LIMIT" default:"30"`
	IPNRateWindow       time.Duration `envconfig:"IPN_RATE_WINDOW" default:"1m"`
	IPNFailureLimit     int           `envconfig:"IPN_FAILURE_LIMIT" default:"6"`
	IPNFailureWindow    time.Duration `envconfig:"IPN_FAILURE_WINDOW" default:"10m"`
	IPNAnomalyThreshold int           `envconfig:"IPN_ANOMALY_THRESHOLD" default:"120"`
	IPNBlockDuration    time.Duration `envconfig:"IPN_BLOCK_DURATION" default:"15m"`

	// --- Settlement ---
	// Сколько ждём оплату счёта до автоматической отмены
	PaymentWait time.Duration `envconfig:"PAYMENT_WAIT" default:"30m"`
	// Интервал опроса статуса у провайдера
	PaymentPollInterval time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"30s"`
	// Процент реферальной комиссии с пополнений (0 = выключено)
	ReferralPercent int `envconfig:"REFERRAL_PERCENT" default:"0"`

	// --- Shop ---
	Currency    string `envconfig:"SHOP_CURRENCY" default:"eur"`
	TopUpMin    int64  `envconfig:"TOPUP_MIN" default:"5"`
	TopUpMax    int64  `envconfig:"TOPUP_MAX" default:"10000"`
	// Сколько покупок даёт один бесплатный спин колеса
	WheelSpinEvery int `envconfig:"WHEEL_SPIN_EVERY" default:"5"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.PaymentWait <= 0 {
		return fmt.Errorf("PAYMENT_WAIT должен быть > 0")
	}
	if c.PaymentPollInterval <= 0 {
		return fmt.Errorf("PAYMENT_POLL_INTERVAL должен быть > 0")
	}
	if c.ReferralPercent < 0 || c.ReferralPercent > 100 {
		return fmt.Errorf("REFERRAL_PERCENT должен быть в диапазоне 0..100")
	}
	if c.WheelSpinEvery <= 0 {
		return fmt.Errorf("WHEEL_SPIN_EVERY должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.TopUpMin <= 0 || c.TopUpMax < c.TopUpMin {
		return fmt.Errorf("некорректные TOPUP_MIN/TOPUP_MAX")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
