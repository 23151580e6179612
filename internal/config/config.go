package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"trading-analyst/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Models   ModelsConfig   `mapstructure:"models"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Results  ResultsConfig  `mapstructure:"results"`
	Database DatabaseConfig `mapstructure:"database"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MergeConfig locates TradingView exports and merged output.
type MergeConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	PairLabel string `mapstructure:"pair_label"`
}

// ExchangeConfig covers candle downloads.
type ExchangeConfig struct {
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	SecretKey         string        `mapstructure:"secret_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	PageLimit         int           `mapstructure:"page_limit"`
	DataFolder        string        `mapstructure:"data_folder"`
}

// OllamaConfig captures model server connectivity.
type OllamaConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// ModelsConfig names the two analysis models.
type ModelsConfig struct {
	Quantitative ModelConfig `mapstructure:"quantitative"`
	Visual       ModelConfig `mapstructure:"visual"`
}

// ModelConfig is one model and its sampling parameters.
type ModelConfig struct {
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	TopK        int     `mapstructure:"top_k"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// AnalysisConfig sets analysis defaults.
type AnalysisConfig struct {
	DefaultTimeframe string `mapstructure:"default_timeframe"`
	DefaultPeriods   int    `mapstructure:"default_periods"`
	PromptPeriods    int    `mapstructure:"prompt_periods"`
}

// ResultsConfig sets where analysis artifacts go.
type ResultsConfig struct {
	JSONFolder   string `mapstructure:"json_folder"`
	ChartsFolder string `mapstructure:"charts_folder"`
}

// DatabaseConfig encapsulates run history storage.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	HistoryLimit    int           `mapstructure:"history_limit"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 通知参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "trading-analyst")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.compress", true)

	v.SetDefault("merge.input_dir", "data/csv_imports")
	v.SetDefault("merge.output_dir", "data/csv_imports/merged")
	v.SetDefault("merge.pair_label", "BTC_USDT")

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.base_url", "")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.secret_key", "")
	v.SetDefault("exchange.request_timeout", "15s")
	v.SetDefault("exchange.requests_per_second", 5.0)
	v.SetDefault("exchange.burst", 1)
	v.SetDefault("exchange.page_limit", 1000)
	v.SetDefault("exchange.data_folder", "data/ccxt")

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.timeout", "300s")
	v.SetDefault("ollama.retry_attempts", 3)
	v.SetDefault("ollama.retry_delay", "2s")

	v.SetDefault("models.quantitative.name", "qwen2.5:14b")
	v.SetDefault("models.quantitative.temperature", 0.3)
	v.SetDefault("models.quantitative.top_p", 0.9)
	v.SetDefault("models.quantitative.top_k", 40)
	v.SetDefault("models.quantitative.max_tokens", 2048)
	v.SetDefault("models.visual.name", "llava:13b")
	v.SetDefault("models.visual.temperature", 0.4)
	v.SetDefault("models.visual.top_p", 0.9)
	v.SetDefault("models.visual.top_k", 40)
	v.SetDefault("models.visual.max_tokens", 2048)

	v.SetDefault("analysis.default_timeframe", "4h")
	v.SetDefault("analysis.default_periods", 200)
	v.SetDefault("analysis.prompt_periods", 50)

	v.SetDefault("results.json_folder", "results/json")
	v.SetDefault("results.charts_folder", "charts/manual")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.history_limit", 20)

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Merge.OutputDir == "" {
		return fmt.Errorf("merge.output_dir must be set")
	}
	if c.Merge.PairLabel == "" {
		return fmt.Errorf("merge.pair_label must be set")
	}
	if c.Exchange.RequestsPerSecond <= 0 {
		return fmt.Errorf("exchange.requests_per_second must be greater than zero")
	}
	if c.Exchange.PageLimit <= 0 {
		return fmt.Errorf("exchange.page_limit must be greater than zero")
	}
	if c.Ollama.RetryAttempts < 1 {
		return fmt.Errorf("ollama.retry_attempts must be at least one")
	}
	if c.Models.Quantitative.Name == "" || c.Models.Visual.Name == "" {
		return fmt.Errorf("models.quantitative.name and models.visual.name must be set")
	}
	if c.Analysis.DefaultPeriods <= 0 {
		return fmt.Errorf("analysis.default_periods must be greater than zero")
	}
	if c.Analysis.PromptPeriods <= 0 {
		return fmt.Errorf("analysis.prompt_periods must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolvePeriods returns either the CLI override or config default.
func (c *Config) ResolvePeriods(override int) int {
	if override > 0 {
		return override
	}
	return c.Analysis.DefaultPeriods
}

// ResolveTimeframe returns either the CLI override or config default.
func (c *Config) ResolveTimeframe(override string) string {
	if override != "" {
		return override
	}
	return c.Analysis.DefaultTimeframe
}
