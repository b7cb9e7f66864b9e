package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/Philra94/homeassistant-energy-charts/internal/energycharts"
)

// Polling interval bounds in minutes.
const (
	MinUpdateInterval = 5
	MaxUpdateInterval = 60
)

// Historical range options.
const (
	HistoricalRangeNone  = "none"
	HistoricalRangeDay   = "day"
	HistoricalRangeWeek  = "week"
	HistoricalRangeMonth = "month"
)

var supportedLanguages = map[string]bool{
	"en": true,
	"de": true,
	"fr": true,
	"it": true,
	"es": true,
}

// Config holds all configuration for the daemon.
type Config struct {
	Country         string        `mapstructure:"country"`
	UpdateInterval  int           `mapstructure:"update_interval"` // minutes
	HistoricalRange string        `mapstructure:"historical_range"`
	Language        string        `mapstructure:"language"`
	Sensors         SensorsConfig `mapstructure:"sensors"`
	Server          ServerConfig  `mapstructure:"server"`
	API             APIConfig     `mapstructure:"api"`
	Logging         LoggingConfig `mapstructure:"logging"`
}

// SensorsConfig toggles the exposed sensor groups.
type SensorsConfig struct {
	Individual bool `mapstructure:"individual"`
	Aggregated bool `mapstructure:"aggregated"`
	Categories bool `mapstructure:"categories"`
	Forecasts  bool `mapstructure:"forecasts"`
}

// ServerConfig configures the HTTP read surface.
type ServerConfig struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"` // requests per second
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	CacheSize      int     `mapstructure:"cache_size"`
}

// APIConfig configures the upstream fetch client.
type APIConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	Retries        int     `mapstructure:"retries"`
	BackoffSeconds float64 `mapstructure:"backoff_seconds"`
	CacheSize      int     `mapstructure:"cache_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the YAML config file, expands $ENV references and applies
// defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("country", "de")
	v.SetDefault("update_interval", 15)
	v.SetDefault("historical_range", HistoricalRangeNone)
	v.SetDefault("language", "de")

	v.SetDefault("sensors.individual", true)
	v.SetDefault("sensors.aggregated", true)
	v.SetDefault("sensors.categories", true)
	v.SetDefault("sensors.forecasts", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.cache_size", 128)

	v.SetDefault("api.base_url", energycharts.DefaultBaseURL)
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.retries", 3)
	v.SetDefault("api.backoff_seconds", 1.0)
	v.SetDefault("api.cache_size", 128)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the loaded configuration against the supported value
// ranges before any component is constructed.
func (c *Config) Validate() error {
	if _, ok := energycharts.SupportedCountries[c.Country]; !ok {
		return fmt.Errorf("unsupported country: %q", c.Country)
	}
	if c.UpdateInterval < MinUpdateInterval || c.UpdateInterval > MaxUpdateInterval {
		return fmt.Errorf(
			"update_interval must be between %d and %d minutes, got %d",
			MinUpdateInterval, MaxUpdateInterval, c.UpdateInterval,
		)
	}
	switch c.HistoricalRange {
	case HistoricalRangeNone, HistoricalRangeDay, HistoricalRangeWeek, HistoricalRangeMonth:
	default:
		return fmt.Errorf("invalid historical_range: %q", c.HistoricalRange)
	}
	if !supportedLanguages[c.Language] {
		return fmt.Errorf("unsupported language: %q", c.Language)
	}
	if !c.Sensors.Individual && !c.Sensors.Aggregated && !c.Sensors.Categories {
		return fmt.Errorf("at least one sensor group must be enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be positive, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("server.rate_limit_burst must be positive, got %d", c.Server.RateLimitBurst)
	}
	if c.Server.CacheSize <= 0 {
		return fmt.Errorf("server.cache_size must be positive, got %d", c.Server.CacheSize)
	}
	if c.API.CacheSize <= 0 {
		return fmt.Errorf("api.cache_size must be positive, got %d", c.API.CacheSize)
	}
	if c.API.Retries <= 0 {
		return fmt.Errorf("api.retries must be positive, got %d", c.API.Retries)
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive, got %d", c.API.TimeoutSeconds)
	}
	return nil
}
