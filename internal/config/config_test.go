package config

import (
	"os"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempConfig(t, `
telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true
  source_channels:
    - "@breakingnews"
    - " @markets "

oracle:
  api_key: "sk-test"

pipeline:
  min_edge_threshold: 0.1
  concurrency: 5

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.MinEdgeThreshold != 0.1 {
		t.Errorf("Unexpected threshold: %v", cfg.Pipeline.MinEdgeThreshold)
	}
	if cfg.Pipeline.Concurrency != 5 {
		t.Errorf("Unexpected concurrency: %d", cfg.Pipeline.Concurrency)
	}
	if len(cfg.Telegram.SourceChannels) != 2 || cfg.Telegram.SourceChannels[1] != "@markets" {
		t.Errorf("Unexpected channels: %q", cfg.Telegram.SourceChannels)
	}

	// Defaults
	if cfg.Pipeline.CacheTTL != 5*time.Minute {
		t.Errorf("Unexpected cache TTL: %v", cfg.Pipeline.CacheTTL)
	}
	if cfg.Pipeline.DedupTTL != 6*time.Hour {
		t.Errorf("Unexpected dedup TTL: %v", cfg.Pipeline.DedupTTL)
	}
	if cfg.Polymarket.Timeout != 10*time.Second || cfg.Oracle.Timeout != 10*time.Second {
		t.Errorf("Unexpected timeouts: %v / %v", cfg.Polymarket.Timeout, cfg.Oracle.Timeout)
	}
	if cfg.Oracle.MaxMarkets != 80 {
		t.Errorf("Unexpected max markets: %d", cfg.Oracle.MaxMarkets)
	}
	if cfg.Polymarket.Limit != 100 {
		t.Errorf("Unexpected limit: %d", cfg.Polymarket.Limit)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
telegram:
  enabled: false
  source_channels: ["@wire"]
`)
	t.Setenv("POLYEDGE_ORACLE_API_KEY", "from-env")
	t.Setenv("POLYEDGE_PIPELINE_MIN_EDGE_THRESHOLD", "0.12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Oracle.APIKey != "from-env" {
		t.Errorf("api key not read from env: %q", cfg.Oracle.APIKey)
	}
	if cfg.Pipeline.MinEdgeThreshold != 0.12 {
		t.Errorf("threshold not read from env: %v", cfg.Pipeline.MinEdgeThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			BotToken:       "token",
			ChatID:         "1",
			Enabled:        true,
			SourceChannels: []string{"@wire"},
			MaxRetries:     3,
		},
		Polymarket: PolymarketConfig{
			GammaAPIURL: "https://example.com",
			Limit:       100,
			Timeout:     10 * time.Second,
			MaxRetries:  3,
		},
		Oracle: OracleConfig{
			APIURL:     "https://example.com",
			APIKey:     "key",
			Model:      "model",
			MaxTokens:  1000,
			Timeout:    10 * time.Second,
			MaxMarkets: 80,
		},
		Pipeline: PipelineConfig{
			MinEdgeThreshold: 0.07,
			CacheTTL:         5 * time.Minute,
			DedupTTL:         6 * time.Hour,
			Concurrency:      3,
			CheckInterval:    time.Minute,
			BackfillWindow:   2 * time.Hour,
			BackfillPause:    time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "negative gamma rate limit", mutate: func(c *Config) { c.Polymarket.RateLimit = -1 }, wantErr: true},
		{name: "zero check interval", mutate: func(c *Config) { c.Pipeline.CheckInterval = 0 }, wantErr: true},
		{name: "missing telegram token", mutate: func(c *Config) { c.Telegram.BotToken = "" }, wantErr: true},
		{name: "token required even when alerts disabled", mutate: func(c *Config) { c.Telegram.Enabled = false; c.Telegram.BotToken = "" }, wantErr: true},
		{name: "chat id not needed when alerts disabled", mutate: func(c *Config) { c.Telegram.Enabled = false; c.Telegram.ChatID = "" }, wantErr: false},
		{name: "no source channels", mutate: func(c *Config) { c.Telegram.SourceChannels = nil }, wantErr: true},
		{name: "missing oracle key", mutate: func(c *Config) { c.Oracle.APIKey = "" }, wantErr: true},
		{name: "zero threshold", mutate: func(c *Config) { c.Pipeline.MinEdgeThreshold = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Pipeline.MinEdgeThreshold = 1.5 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }, wantErr: true},
		{name: "zero cache ttl", mutate: func(c *Config) { c.Pipeline.CacheTTL = 0 }, wantErr: true},
		{name: "limit too large", mutate: func(c *Config) { c.Polymarket.Limit = 5000 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCleanChannels(t *testing.T) {
	got := cleanChannels([]string{"@a, @b", "", " @c "})
	want := []string{"@a", "@b", "@c"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
