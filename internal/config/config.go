package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DateLayout is the format of all configured calendar days.
const DateLayout = "2006-01-02"

// Config represents the complete application configuration
type Config struct {
	Kickbase   KickbaseConfig   `mapstructure:"kickbase"`
	Season     SeasonConfig     `mapstructure:"season"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	API        APIConfig        `mapstructure:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// KickbaseConfig holds Kickbase API configuration
type KickbaseConfig struct {
	APIURL                string        `mapstructure:"api_url"`
	Email                 string        `mapstructure:"email"`
	Password              string        `mapstructure:"password"`
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxRetries            int           `mapstructure:"max_retries"`
	RetryDelayBase        time.Duration `mapstructure:"retry_delay_base"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	MaxIdleConns          int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout       time.Duration `mapstructure:"idle_conn_timeout"`
}

// SeasonConfig holds the fixed league rules
type SeasonConfig struct {
	ReferenceDate   string  `mapstructure:"reference_date"`
	MarketValueDate string  `mapstructure:"market_value_date"`
	InitialCredit   int64   `mapstructure:"initial_credit"`
	DailyBonusCap   int64   `mapstructure:"daily_bonus_cap"`
	BidFactor       float64 `mapstructure:"bid_factor"`
	PointsBonus     int64   `mapstructure:"points_bonus"`
}

// LedgerConfig holds feed pagination configuration
type LedgerConfig struct {
	PageRetries    int           `mapstructure:"page_retries"`
	PageRetryDelay time.Duration `mapstructure:"page_retry_delay"`
}

// ProjectionConfig holds batch scheduling configuration
type ProjectionConfig struct {
	Leagues          []string      `mapstructure:"leagues"` // empty = every league of the account
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	UserTimeout      time.Duration `mapstructure:"user_timeout"`
	MaxParallelUsers int           `mapstructure:"max_parallel_users"`
}

// StorageConfig holds durable cache configuration
type StorageConfig struct {
	Backend        string `mapstructure:"backend"` // sqlite or redis
	DBPath         string `mapstructure:"db_path"`
	MaxProjections int    `mapstructure:"max_projections"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// APIConfig holds HTTP API configuration
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// KICKBALANCE_KICKBASE_PASSWORD overrides kickbase.password, etc.
	v.SetEnvPrefix("KICKBALANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Kickbase defaults
	v.SetDefault("kickbase.api_url", "https://api.kickbase.com")
	v.SetDefault("kickbase.email", "")
	v.SetDefault("kickbase.password", "")
	v.SetDefault("kickbase.timeout", "30s")
	v.SetDefault("kickbase.max_retries", 3)
	v.SetDefault("kickbase.retry_delay_base", "1s")
	v.SetDefault("kickbase.max_concurrent_requests", 8)
	v.SetDefault("kickbase.max_idle_conns", 100)
	v.SetDefault("kickbase.max_idle_conns_per_host", 10)
	v.SetDefault("kickbase.idle_conn_timeout", "90s")

	// Season defaults
	v.SetDefault("season.reference_date", "2023-08-07")
	v.SetDefault("season.market_value_date", "2023-08-06")
	v.SetDefault("season.initial_credit", 150_000_000)
	v.SetDefault("season.daily_bonus_cap", 100_000)
	v.SetDefault("season.bid_factor", 0.33)
	v.SetDefault("season.points_bonus", 0)

	// Ledger defaults
	v.SetDefault("ledger.page_retries", 2)
	v.SetDefault("ledger.page_retry_delay", "2s")

	// Projection defaults
	v.SetDefault("projection.leagues", []string{})
	v.SetDefault("projection.poll_interval", "1h")
	v.SetDefault("projection.user_timeout", "2m")
	v.SetDefault("projection.max_parallel_users", 4)

	// Storage defaults
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.db_path", "./data/kickbalance.db")
	v.SetDefault("storage.max_projections", 10000)
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Kickbase config
	if c.Kickbase.APIURL == "" {
		return fmt.Errorf("kickbase.api_url is required")
	}
	if c.Kickbase.Email == "" {
		return fmt.Errorf("kickbase.email is required")
	}
	if c.Kickbase.Password == "" {
		return fmt.Errorf("kickbase.password is required")
	}
	if c.Kickbase.Timeout <= 0 {
		return fmt.Errorf("kickbase.timeout must be positive")
	}
	if c.Kickbase.MaxRetries < 1 {
		return fmt.Errorf("kickbase.max_retries must be at least 1")
	}
	if c.Kickbase.MaxConcurrentRequests < 1 {
		return fmt.Errorf("kickbase.max_concurrent_requests must be at least 1")
	}

	// Validate Season config
	ref, err := time.Parse(DateLayout, c.Season.ReferenceDate)
	if err != nil {
		return fmt.Errorf("season.reference_date must be YYYY-MM-DD: %w", err)
	}
	valueDay, err := time.Parse(DateLayout, c.Season.MarketValueDate)
	if err != nil {
		return fmt.Errorf("season.market_value_date must be YYYY-MM-DD: %w", err)
	}
	if valueDay.After(ref) {
		return fmt.Errorf("season.market_value_date must not be after season.reference_date")
	}
	if c.Season.InitialCredit <= 0 {
		return fmt.Errorf("season.initial_credit must be positive")
	}
	if c.Season.DailyBonusCap < 0 {
		return fmt.Errorf("season.daily_bonus_cap must not be negative")
	}
	if c.Season.BidFactor < 0 {
		return fmt.Errorf("season.bid_factor must not be negative")
	}
	if c.Season.PointsBonus < 0 {
		return fmt.Errorf("season.points_bonus must not be negative")
	}

	// Validate Ledger config
	if c.Ledger.PageRetries < 0 {
		return fmt.Errorf("ledger.page_retries must not be negative")
	}

	// Validate Projection config
	if c.Projection.PollInterval < 1*time.Minute {
		return fmt.Errorf("projection.poll_interval must be at least 1 minute")
	}
	if c.Projection.UserTimeout <= 0 {
		return fmt.Errorf("projection.user_timeout must be positive")
	}
	if c.Projection.MaxParallelUsers < 1 {
		return fmt.Errorf("projection.max_parallel_users must be at least 1")
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: sqlite, redis")
	}
	if c.Storage.MaxProjections < 1 {
		return fmt.Errorf("storage.max_projections must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate API config
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ReferenceTime returns the parsed season reference date (UTC midnight).
// Call only after Validate succeeded.
func (s SeasonConfig) ReferenceTime() time.Time {
	t, _ := time.Parse(DateLayout, s.ReferenceDate)
	return t
}

// BidFactorDecimal returns the bid factor as an exact decimal.
func (s SeasonConfig) BidFactorDecimal() decimal.Decimal {
	return decimal.NewFromFloat(s.BidFactor)
}
