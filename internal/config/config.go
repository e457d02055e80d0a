package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"pricewatch/internal/aggregator"
	"pricewatch/internal/coin"
	"pricewatch/internal/gw2"
	"pricewatch/internal/ratelimit"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// EnvPrefix is prepended to every environment variable, e.g. PRICEWATCH_GW2_ITEM_IDS.
const EnvPrefix = "PRICEWATCH"

// GW2Config configures the Guild Wars 2 trading post board.
type GW2Config struct {
	BaseURL            string `mapstructure:"base_url"`
	ItemIDs            []int  `mapstructure:"item_ids"`
	PriceFormat        string `mapstructure:"price_format"`
	Metric             string `mapstructure:"metric"`
	IncludeDescription bool   `mapstructure:"include_description"`
	Sort               string `mapstructure:"sort"`
}

// HistoryConfig configures the price history averager.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Window  int    `mapstructure:"window"`
}

// BazaarConfig configures the Hypixel bazaar board.
type BazaarConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	BaseURL         string   `mapstructure:"base_url"`
	ExcludePrefixes []string `mapstructure:"exclude_prefixes"`
	Sort            string   `mapstructure:"sort"`
}

// RateLimitConfig overrides the request rate for one remote API.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// ServerConfig configures the HTTP server started by serve.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// RedisConfig enables the response cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Config holds all configuration for pricewatch.
type Config struct {
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	Concurrency int           `mapstructure:"concurrency"`

	GW2     GW2Config     `mapstructure:"gw2"`
	History HistoryConfig `mapstructure:"history"`
	Bazaar  BazaarConfig  `mapstructure:"bazaar"`
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`

	// RateLimits is keyed by API name: gw2, datawars or hypixel.
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("timeout", 5*time.Second)
	v.SetDefault("retry_count", 0)
	v.SetDefault("concurrency", 4)

	v.SetDefault("gw2.base_url", "https://api.guildwars2.com/v2")
	v.SetDefault("gw2.item_ids", []int{19721, 19976, 24283, 24289, 19701})
	v.SetDefault("gw2.price_format", string(coin.FormatNameTriUnit))
	v.SetDefault("gw2.metric", string(gw2.MetricPrice))
	v.SetDefault("gw2.include_description", false)
	v.SetDefault("gw2.sort", string(aggregator.Descending))

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.base_url", "https://api.datawars2.ie/gw2/v1")
	v.SetDefault("history.window", 30)

	v.SetDefault("bazaar.enabled", true)
	v.SetDefault("bazaar.base_url", "https://api.hypixel.net/v2")
	v.SetDefault("bazaar.exclude_prefixes", []string{"ENCHANTMENT"})
	v.SetDefault("bazaar.sort", string(aggregator.Descending))

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.refresh_interval", time.Duration(0))

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 30*time.Second)
}

// Load reads configuration from defaults, an optional config file and the
// environment. Environment variables take precedence over file values.
//
// An empty path searches for config.yaml in the working directory and
// $HOME/.pricewatch and ignores a missing file. A non-empty path must exist.
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	// existing environment variables win over .env entries
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pricewatch")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports every invalid setting in a single error.
func (c *Config) Validate() error {
	var problems []string

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level: %v", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format: unknown format %q", c.LogFormat))
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout: must be positive")
	}
	if c.RetryCount < 0 {
		problems = append(problems, "retry_count: must not be negative")
	}
	if c.Concurrency <= 0 {
		problems = append(problems, "concurrency: must be positive")
	}

	if _, err := coin.ParseFormat(c.GW2.PriceFormat); err != nil {
		problems = append(problems, fmt.Sprintf("gw2.price_format: %v", err))
	}
	metric, err := gw2.ParseMetric(c.GW2.Metric)
	if err != nil {
		problems = append(problems, fmt.Sprintf("gw2.metric: %v", err))
	}
	if metric == gw2.MetricProfit && !c.History.Enabled {
		problems = append(problems, "gw2.metric: profit requires history.enabled")
	}
	if _, err := aggregator.ParseDirection(c.GW2.Sort); err != nil {
		problems = append(problems, fmt.Sprintf("gw2.sort: %v", err))
	}

	if c.History.Enabled && c.History.Window <= 0 {
		problems = append(problems, "history.window: must be positive")
	}

	if _, err := aggregator.ParseDirection(c.Bazaar.Sort); err != nil {
		problems = append(problems, fmt.Sprintf("bazaar.sort: %v", err))
	}

	for name, rl := range c.RateLimits {
		if !slices.Contains(ratelimit.APIs, ratelimit.API(name)) {
			problems = append(problems, fmt.Sprintf("rate_limits.%s: unknown API", name))
			continue
		}
		if rl.PerSecond <= 0 || rl.Burst <= 0 {
			problems = append(problems, fmt.Sprintf("rate_limits.%s: per_second and burst must be positive", name))
		}
	}

	if len(c.GW2.ItemIDs) == 0 && !c.Bazaar.Enabled {
		problems = append(problems, "no boards enabled: set gw2.item_ids or bazaar.enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ApplyRateLimits replaces the default limit of every API named in
// rate_limits.
func (c *Config) ApplyRateLimits(l *ratelimit.Limiter) {
	for name, rl := range c.RateLimits {
		l.Set(ratelimit.API(name), rate.Limit(rl.PerSecond), rl.Burst)
	}
}

// Logger builds the logrus logger described by log_level and log_format.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
