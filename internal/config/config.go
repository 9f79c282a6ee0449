package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upbit    UpbitConfig
	Signal   SignalConfig
	Notify   NotifyConfig
	Security SecurityConfig
	Engine   EngineConfig
	Risk     RiskConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// UpbitConfig - доступ к Upbit API.
// Секретный ключ может храниться зашифрованным (AES-256-GCM, base64),
// тогда UPBIT_SECRET_ENCRYPTED=true и нужен MASTER_KEY.
type UpbitConfig struct {
	AccessKey string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// SignalConfig - источник торговых сигналов (OpenAI-совместимый API)
type SignalConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NotifyConfig - настройки уведомлений
type NotifyConfig struct {
	DiscordWebhookURL string
	BufferSize        int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// bcrypt-хеш Bearer-токена для REST API. Пустое значение отключает
	// аутентификацию (только для локальной разработки).
	APITokenHash string
	MasterKey    string
}

// EngineConfig - настройки торгового движка
type EngineConfig struct {
	// Торгуемые рынки, например KRW-BTC,KRW-ETH
	Markets []string

	// Периодические задачи
	CollectFreq  time.Duration // сбор цен для окна волатильности
	SignalFreq   time.Duration // запрос сигнала у модели
	SweepFreq    time.Duration // сверка застрявших ордеров
	BalanceFreq  time.Duration // обновление ending_balance из биржи
	RolloverFreq time.Duration // проверка смены торгового дня

	// Отправка ордера на биржу
	SubmitMaxAttempts int
	SubmitRetryBase   time.Duration

	// Ожидание исполнения
	PollInterval    time.Duration
	PollMaxAttempts int

	// Сверка: ордер младше этого возраста пропускается,
	// старше StaleAfter - только репортится
	SweepMinAge time.Duration
	StaleAfter  time.Duration

	// Окно волатильности
	VolatilityWindow time.Duration

	// WebSocket-поток котировок Upbit в дополнение к REST-опросу
	TickerStream bool
}

// RiskConfig - стартовые параметры риска.
// Сидируются в таблицу risk_params при первом запуске,
// дальше правятся через API.
type RiskConfig struct {
	PositionSizeMinPct     float64
	PositionSizeMaxPct     float64
	StopLossPct            float64
	DailyLossLimitPct      float64
	VolatilityThresholdPct float64
	MinConfidence          float64
	OrderMaxKRW            float64
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "autotrader"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Upbit: UpbitConfig{
			AccessKey: getEnv("UPBIT_ACCESS_KEY", ""),
			SecretKey: getEnv("UPBIT_SECRET_KEY", ""),
			BaseURL:   getEnv("UPBIT_BASE_URL", "https://api.upbit.com"),
			Timeout:   getEnvAsDuration("UPBIT_TIMEOUT", 10*time.Second),
		},
		Signal: SignalConfig{
			Enabled: getEnvAsBool("SIGNAL_ENABLED", true),
			BaseURL: getEnv("SIGNAL_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getEnv("SIGNAL_API_KEY", ""),
			Model:   getEnv("SIGNAL_MODEL", "gpt-4o-mini"),
			Timeout: getEnvAsDuration("SIGNAL_TIMEOUT", 30*time.Second),
		},
		Notify: NotifyConfig{
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
			BufferSize:        getEnvAsInt("NOTIFY_BUFFER_SIZE", 256),
		},
		Security: SecurityConfig{
			APITokenHash: getEnv("API_TOKEN_HASH", ""),
			MasterKey:    getEnv("MASTER_KEY", ""),
		},
		Engine: EngineConfig{
			Markets: getEnvAsSlice("MARKETS", []string{"KRW-BTC"}),

			CollectFreq:  getEnvAsDuration("COLLECT_FREQ", 10*time.Second),
			SignalFreq:   getEnvAsDuration("SIGNAL_FREQ", 10*time.Minute),
			SweepFreq:    getEnvAsDuration("SWEEP_FREQ", 1*time.Minute),
			BalanceFreq:  getEnvAsDuration("BALANCE_FREQ", 1*time.Minute),
			RolloverFreq: getEnvAsDuration("ROLLOVER_FREQ", 1*time.Minute),

			SubmitMaxAttempts: getEnvAsInt("SUBMIT_MAX_ATTEMPTS", 3),
			SubmitRetryBase:   getEnvAsDuration("SUBMIT_RETRY_BASE", 1*time.Second),

			PollInterval:    getEnvAsDuration("POLL_INTERVAL", 1*time.Second),
			PollMaxAttempts: getEnvAsInt("POLL_MAX_ATTEMPTS", 30),

			SweepMinAge: getEnvAsDuration("SWEEP_MIN_AGE", 2*time.Minute),
			StaleAfter:  getEnvAsDuration("STALE_AFTER", 1*time.Hour),

			VolatilityWindow: getEnvAsDuration("VOLATILITY_WINDOW", 1*time.Hour),

			TickerStream: getEnvAsBool("TICKER_STREAM", true),
		},
		Risk: RiskConfig{
			PositionSizeMinPct:     getEnvAsFloat("RISK_POSITION_MIN_PCT", 5.0),
			PositionSizeMaxPct:     getEnvAsFloat("RISK_POSITION_MAX_PCT", 20.0),
			StopLossPct:            getEnvAsFloat("RISK_STOP_LOSS_PCT", 3.0),
			DailyLossLimitPct:      getEnvAsFloat("RISK_DAILY_LOSS_LIMIT_PCT", 5.0),
			VolatilityThresholdPct: getEnvAsFloat("RISK_VOLATILITY_THRESHOLD_PCT", 8.0),
			MinConfidence:          getEnvAsFloat("RISK_MIN_CONFIDENCE", 0.65),
			OrderMaxKRW:            getEnvAsFloat("RISK_ORDER_MAX_KRW", 1000000),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", ""),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decryptSecrets расшифровывает секретный ключ Upbit если он хранится зашифрованным
func (c *Config) decryptSecrets() error {
	if !getEnvAsBool("UPBIT_SECRET_ENCRYPTED", false) {
		return nil
	}

	if c.Security.MasterKey == "" {
		return fmt.Errorf("MASTER_KEY is required when UPBIT_SECRET_ENCRYPTED=true")
	}

	key, err := crypto.ParseKey(c.Security.MasterKey)
	if err != nil {
		return fmt.Errorf("invalid MASTER_KEY: %w", err)
	}

	decrypted, err := crypto.Decrypt(c.Upbit.SecretKey, key)
	if err != nil {
		return fmt.Errorf("failed to decrypt UPBIT_SECRET_KEY: %w", err)
	}

	c.Upbit.SecretKey = decrypted
	return nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Upbit.AccessKey == "" {
		return fmt.Errorf("UPBIT_ACCESS_KEY is required")
	}
	if c.Upbit.SecretKey == "" {
		return fmt.Errorf("UPBIT_SECRET_KEY is required")
	}

	if c.Signal.Enabled && c.Signal.APIKey == "" {
		return fmt.Errorf("SIGNAL_API_KEY is required when SIGNAL_ENABLED=true")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if len(c.Engine.Markets) == 0 {
		return fmt.Errorf("MARKETS must list at least one market")
	}

	if c.Engine.SubmitMaxAttempts < 1 || c.Engine.SubmitMaxAttempts > 10 {
		return fmt.Errorf("SUBMIT_MAX_ATTEMPTS must be between 1 and 10, got %d", c.Engine.SubmitMaxAttempts)
	}

	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.Engine.PollInterval)
	}

	if c.Engine.PollMaxAttempts < 1 || c.Engine.PollMaxAttempts > 600 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be between 1 and 600, got %d", c.Engine.PollMaxAttempts)
	}

	if c.Engine.SweepMinAge <= 0 {
		return fmt.Errorf("SWEEP_MIN_AGE must be positive, got %v", c.Engine.SweepMinAge)
	}

	if c.Risk.PositionSizeMinPct <= 0 || c.Risk.PositionSizeMaxPct > 100 ||
		c.Risk.PositionSizeMinPct > c.Risk.PositionSizeMaxPct {
		return fmt.Errorf("position size percents must satisfy 0 < min <= max <= 100, got min=%v max=%v",
			c.Risk.PositionSizeMinPct, c.Risk.PositionSizeMaxPct)
	}

	if c.Risk.DailyLossLimitPct <= 0 || c.Risk.DailyLossLimitPct > 100 {
		return fmt.Errorf("RISK_DAILY_LOSS_LIMIT_PCT must be in (0, 100], got %v", c.Risk.DailyLossLimitPct)
	}

	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("RISK_MIN_CONFIDENCE must be in [0, 1], got %v", c.Risk.MinConfidence)
	}

	return nil
}

// AuthEnabled возвращает true если REST API требует Bearer-токен
func (c *Config) AuthEnabled() bool {
	return c.Security.APITokenHash != ""
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
