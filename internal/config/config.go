package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TelegramConfig holds the bot used both for reading source channels and for sending alerts
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	SourceChannels []string      `mapstructure:"source_channels"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
}

// PolymarketConfig holds Gamma API configuration
type PolymarketConfig struct {
	GammaAPIURL    string        `mapstructure:"gamma_api_url"`
	MarketURLBase  string        `mapstructure:"market_url_base"`
	Limit          int           `mapstructure:"limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RateLimit      int           `mapstructure:"rate_limit_per_second"`
}

// OracleConfig holds the reasoning model configuration
type OracleConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxMarkets int           `mapstructure:"max_markets"`
}

// PipelineConfig holds opportunity detection settings
type PipelineConfig struct {
	MinEdgeThreshold float64       `mapstructure:"min_edge_threshold"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	DedupTTL         time.Duration `mapstructure:"dedup_ttl"`
	Concurrency      int           `mapstructure:"concurrency"`
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	BackfillWindow   time.Duration `mapstructure:"backfill_window"`
	BackfillPause    time.Duration `mapstructure:"backfill_pause"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file, a .env file if present, and environment variables.
// Environment variables use the POLYEDGE_ prefix with dots replaced by underscores,
// e.g. POLYEDGE_TELEGRAM_BOT_TOKEN.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("POLYEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Telegram.SourceChannels = cleanChannels(cfg.Telegram.SourceChannels)

	return &cfg, nil
}

// cleanChannels trims entries and splits comma-separated values, which is how
// a list arrives when it is set through a single environment variable.
func cleanChannels(in []string) []string {
	var out []string
	for _, item := range in {
		for _, c := range strings.Split(item, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.source_channels", []string{})
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.poll_timeout", "60s")

	// Polymarket defaults
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.market_url_base", "https://polymarket.com")
	v.SetDefault("polymarket.limit", 100)
	v.SetDefault("polymarket.timeout", "10s")
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay_base", "1s")
	v.SetDefault("polymarket.rate_limit_per_second", 5)

	// Oracle defaults
	v.SetDefault("oracle.api_url", "https://api.anthropic.com")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.max_tokens", 1000)
	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("oracle.max_markets", 80)

	// Pipeline defaults
	v.SetDefault("pipeline.min_edge_threshold", 0.07)
	v.SetDefault("pipeline.cache_ttl", "5m")
	v.SetDefault("pipeline.dedup_ttl", "6h")
	v.SetDefault("pipeline.concurrency", 3)
	v.SetDefault("pipeline.check_interval", "60s")
	v.SetDefault("pipeline.backfill_window", "2h")
	v.SetDefault("pipeline.backfill_pause", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Telegram config
	if len(c.Telegram.SourceChannels) == 0 {
		return fmt.Errorf("telegram.source_channels must contain at least one channel")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.Enabled {
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 1 {
		return fmt.Errorf("telegram.max_retries must be at least 1")
	}

	// Validate Polymarket config
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.Limit < 1 || c.Polymarket.Limit > 1000 {
		return fmt.Errorf("polymarket.limit must be between 1 and 1000")
	}
	if c.Polymarket.Timeout <= 0 {
		return fmt.Errorf("polymarket.timeout must be positive")
	}
	if c.Polymarket.MaxRetries < 1 {
		return fmt.Errorf("polymarket.max_retries must be at least 1")
	}
	if c.Polymarket.RateLimit < 0 {
		return fmt.Errorf("polymarket.rate_limit_per_second must not be negative")
	}

	// Validate Oracle config
	if c.Oracle.APIURL == "" {
		return fmt.Errorf("oracle.api_url is required")
	}
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle.api_key is required")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model is required")
	}
	if c.Oracle.MaxTokens < 1 {
		return fmt.Errorf("oracle.max_tokens must be at least 1")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive")
	}
	if c.Oracle.MaxMarkets < 1 {
		return fmt.Errorf("oracle.max_markets must be at least 1")
	}

	// Validate Pipeline config
	if c.Pipeline.MinEdgeThreshold <= 0.0 || c.Pipeline.MinEdgeThreshold > 1.0 {
		return fmt.Errorf("pipeline.min_edge_threshold must be in (0.0, 1.0]")
	}
	if c.Pipeline.CacheTTL <= 0 {
		return fmt.Errorf("pipeline.cache_ttl must be positive")
	}
	if c.Pipeline.DedupTTL <= 0 {
		return fmt.Errorf("pipeline.dedup_ttl must be positive")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1")
	}
	if c.Pipeline.CheckInterval <= 0 {
		return fmt.Errorf("pipeline.check_interval must be positive")
	}
	if c.Pipeline.BackfillWindow <= 0 {
		return fmt.Errorf("pipeline.backfill_window must be positive")
	}
	if c.Pipeline.BackfillPause < 0 {
		return fmt.Errorf("pipeline.backfill_pause must not be negative")
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
