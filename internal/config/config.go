// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// UpstreamConfig points at the catalog API.
type UpstreamConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// CacheConfig sets the paths of the persisted JSON stores.
type CacheConfig struct {
	RecordsPath string `mapstructure:"records_path"`
	LinksPath   string `mapstructure:"links_path"`
}

// CrawlerConfig governs incremental crawl cycles.
type CrawlerConfig struct {
	PageSize         int  `mapstructure:"page_size"`
	MaxPagesPerCycle int  `mapstructure:"max_pages_per_cycle"`
	PageDelayMs      int  `mapstructure:"page_delay_ms"`
	ErrorDelayMs     int  `mapstructure:"error_delay_ms"`
	IntervalMinutes  int  `mapstructure:"interval_minutes"`
	Background       bool `mapstructure:"background"`
	InitialUpdate    bool `mapstructure:"initial_update"`
}

// AggregatorConfig bounds listing aggregation.
type AggregatorConfig struct {
	PageSize     int `mapstructure:"page_size"`
	MaxPages     int `mapstructure:"max_pages"`
	MaxItems     int `mapstructure:"max_items"`
	MaxRetries   int `mapstructure:"max_retries"`
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
}

// ResolverConfig bounds batch owner-name resolution.
type ResolverConfig struct {
	MaxBatchLookups    int `mapstructure:"max_batch_lookups"`
	BatchLookupDelayMs int `mapstructure:"batch_lookup_delay_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("upstream.base_url", "https://api.lokamc.com")
	v.SetDefault("upstream.user_agent", "marketmirror/0.1")
	v.SetDefault("upstream.timeout_seconds", 15)
	v.SetDefault("upstream.rps", 4)
	v.SetDefault("upstream.burst", 2)
	v.SetDefault("cache.records_path", "player_cache.json")
	v.SetDefault("cache.links_path", "account_links.json")
	v.SetDefault("crawler.page_size", 20)
	v.SetDefault("crawler.max_pages_per_cycle", 50)
	v.SetDefault("crawler.page_delay_ms", 1000)
	v.SetDefault("crawler.error_delay_ms", 5000)
	v.SetDefault("crawler.interval_minutes", 60)
	v.SetDefault("crawler.background", false)
	v.SetDefault("crawler.initial_update", false)
	v.SetDefault("aggregator.page_size", 100)
	v.SetDefault("aggregator.max_pages", 50)
	v.SetDefault("aggregator.max_items", 5000)
	v.SetDefault("aggregator.max_retries", 3)
	v.SetDefault("aggregator.retry_delay_ms", 2000)
	v.SetDefault("resolver.max_batch_lookups", 5)
	v.SetDefault("resolver.batch_lookup_delay_ms", 500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url must be set")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be > 0")
	}
	if c.Cache.RecordsPath == "" {
		return fmt.Errorf("cache.records_path must be set")
	}
	if c.Cache.LinksPath == "" {
		return fmt.Errorf("cache.links_path must be set")
	}
	if c.Crawler.MaxPagesPerCycle <= 0 {
		return fmt.Errorf("crawler.max_pages_per_cycle must be > 0")
	}
	if c.Aggregator.MaxRetries <= 0 {
		return fmt.Errorf("aggregator.max_retries must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// UpstreamTimeout converts the configured timeout into a duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// PageDelay returns the crawler's inter-page delay.
func (c CrawlerConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// ErrorDelay returns the crawler's post-failure delay.
func (c CrawlerConfig) ErrorDelay() time.Duration {
	return time.Duration(c.ErrorDelayMs) * time.Millisecond
}

// Interval returns the background crawl cadence.
func (c CrawlerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// RetryDelay returns the aggregator's fixed backoff.
func (c AggregatorConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// BatchLookupDelay returns the pause between batch owner lookups.
func (c ResolverConfig) BatchLookupDelay() time.Duration {
	return time.Duration(c.BatchLookupDelayMs) * time.Millisecond
}
