// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mcp-meal-vision/internal/quota"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Provider ProviderConfig `yaml:"provider"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Quota    quota.Config   `yaml:"quota"`
}

type ServerConfig struct {
	Transport string  `yaml:"transport"` // http, or sse to also serve MCP over SSE
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	PublicURL string  `yaml:"public_url"` // base URL announced to SSE clients
	RateLimit float64 `yaml:"rate_limit"` // tool calls per second per client, 0 disables
	RateBurst int     `yaml:"rate_burst"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type ProviderConfig struct {
	Name    string `yaml:"name"` // gemini, openai or stub
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-"`
}

type AnalysisConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxImageBytes   int           `yaml:"max_image_bytes"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float32       `yaml:"temperature"`
	InsightLanguage string        `yaml:"insight_language"`
	// Token prices in USD per million, used for the logged cost estimate.
	InputPricePerMillion  float64 `yaml:"input_price_per_million"`
	OutputPricePerMillion float64 `yaml:"output_price_per_million"`
}

const (
	TransportHTTP = "http"
	TransportSSE  = "sse"
)

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: TransportSSE,
			Host:      "0.0.0.0",
			Port:      8011,
			RateLimit: 5,
			RateBurst: 10,
		},
		Storage: StorageConfig{DBPath: "/data/meal-vision.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Provider: ProviderConfig{
			Name: "gemini",
		},
		Analysis: AnalysisConfig{
			MaxAttempts:     3,
			BaseDelay:       time.Second,
			Timeout:         30 * time.Second,
			MaxImageBytes:   5 * 1024 * 1024,
			MaxOutputTokens: 2048,
			Temperature:     0.2,
			InsightLanguage: "Turkish",

			InputPricePerMillion:  0.10,
			OutputPricePerMillion: 0.40,
		},
		Quota: quota.Config{
			Driver:     quota.DriverMemory,
			DailyLimit: quota.DefaultDailyLimit,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A .env file in the working directory is read
// first when dotEnv is set.
func Load(path string, dotEnv bool) (*Config, error) {
	if dotEnv {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getIntEnv("PORT", c.Server.Port)
	c.Server.Transport = getEnv("TRANSPORT", c.Server.Transport)
	c.Server.PublicURL = getEnv("PUBLIC_URL", c.Server.PublicURL)
	c.Server.RateLimit = getFloatEnv("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = getIntEnv("RATE_BURST", c.Server.RateBurst)
	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Provider.Name = getEnv("AI_PROVIDER", c.Provider.Name)
	c.Provider.Model = getEnv("AI_MODEL", c.Provider.Model)
	c.Provider.BaseURL = getEnv("AI_BASE_URL", c.Provider.BaseURL)
	switch c.Provider.Name {
	case "gemini":
		c.Provider.APIKey = os.Getenv("GEMINI_API_KEY")
	case "openai":
		c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	c.Analysis.MaxAttempts = getIntEnv("ANALYSIS_MAX_ATTEMPTS", c.Analysis.MaxAttempts)
	c.Analysis.BaseDelay = getDurationEnv("ANALYSIS_BASE_DELAY", c.Analysis.BaseDelay)
	c.Analysis.Timeout = getDurationEnv("ANALYSIS_TIMEOUT", c.Analysis.Timeout)
	c.Analysis.MaxImageBytes = getIntEnv("ANALYSIS_MAX_IMAGE_BYTES", c.Analysis.MaxImageBytes)
	c.Analysis.InsightLanguage = getEnv("ANALYSIS_INSIGHT_LANGUAGE", c.Analysis.InsightLanguage)
	c.Analysis.InputPricePerMillion = getFloatEnv("ANALYSIS_INPUT_PRICE", c.Analysis.InputPricePerMillion)
	c.Analysis.OutputPricePerMillion = getFloatEnv("ANALYSIS_OUTPUT_PRICE", c.Analysis.OutputPricePerMillion)

	c.Quota.Driver = getEnv("QUOTA_DRIVER", c.Quota.Driver)
	c.Quota.DailyLimit = getIntEnv("QUOTA_DAILY_LIMIT", c.Quota.DailyLimit)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		if c.Quota.Redis == nil {
			c.Quota.Redis = &quota.RedisConfig{}
		}
		c.Quota.Redis.Addr = addr
		c.Quota.Redis.Password = getEnv("REDIS_PASSWORD", c.Quota.Redis.Password)
		c.Quota.Redis.DB = getIntEnv("REDIS_DB", c.Quota.Redis.DB)
	}
}

// Validate rejects values the server cannot run with. A missing API key is
// not an error here; analysis calls report it per request.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch c.Server.Transport {
	case TransportHTTP, TransportSSE:
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("server.rate_limit and server.rate_burst must not be negative")
	}
	if c.Analysis.InputPricePerMillion < 0 || c.Analysis.OutputPricePerMillion < 0 {
		return errors.New("analysis token prices must not be negative")
	}
	if c.Storage.DBPath == "" {
		return errors.New("storage.db_path is required")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Provider.Name {
	case "gemini", "openai", "stub":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Analysis.MaxAttempts < 1 {
		return fmt.Errorf("analysis.max_attempts must be at least 1, got %d", c.Analysis.MaxAttempts)
	}
	if c.Analysis.BaseDelay < 0 {
		return fmt.Errorf("analysis.base_delay must not be negative, got %s", c.Analysis.BaseDelay)
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout must be positive, got %s", c.Analysis.Timeout)
	}
	if c.Analysis.MaxImageBytes <= 0 {
		return fmt.Errorf("analysis.max_image_bytes must be positive, got %d", c.Analysis.MaxImageBytes)
	}
	switch c.Quota.Driver {
	case quota.DriverMemory:
	case quota.DriverRedis:
		if c.Quota.Redis == nil || c.Quota.Redis.Addr == "" {
			return errors.New("quota.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown quota driver %q", c.Quota.Driver)
	}
	if c.Quota.DailyLimit < 1 {
		return fmt.Errorf("quota.daily_limit must be at least 1, got %d", c.Quota.DailyLimit)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseURL is PublicURL when set, otherwise the listen address with wildcard
// hosts replaced by localhost.
func (c *Config) BaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
