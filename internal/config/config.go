// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Guliveer/vitalis/sampler/internal/degradation"
	"github.com/Guliveer/vitalis/sampler/internal/recovery"
	"github.com/Guliveer/vitalis/sampler/internal/scheduler"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "500ms", "1s", "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Tier-two backends.
const (
	TierTwoNone  = "none"
	TierTwoFile  = "file"
	TierTwoRedis = "redis"
)

// Config holds all sampler configuration.
type Config struct {
	Collection CollectionConfig `yaml:"collection"`
	Cache      CacheConfig      `yaml:"cache"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Channel    ChannelConfig    `yaml:"channel"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CollectionConfig holds collector loop settings.
type CollectionConfig struct {
	Interval              Duration `yaml:"interval"`
	CategoryPolicy        string   `yaml:"category_policy"`
	FetchTimeout          Duration `yaml:"fetch_timeout"`
	ProcessorSampleWindow Duration `yaml:"processor_sample_window"`
	CollectOnStart        bool     `yaml:"collect_on_start"`
	// TrendSize is how many live snapshots feed extrapolation.
	TrendSize int `yaml:"trend_size"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	Capacity     int         `yaml:"capacity"`
	TierTwo      string      `yaml:"tier_two"`
	Dir          string      `yaml:"dir"`
	MaxSizeMB    int         `yaml:"max_size_mb"`
	Redis        RedisConfig `yaml:"redis"`
	WriteTimeout Duration    `yaml:"write_timeout"`
}

// RedisConfig holds the redis tier-two connection.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// RecoveryConfig holds retry and breaker settings for collection.
type RecoveryConfig struct {
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RetryConfig mirrors recovery.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Multiplier  float64  `yaml:"multiplier"`
}

// BreakerConfig mirrors recovery.BreakerSettings.
type BreakerConfig struct {
	TripThreshold uint32   `yaml:"trip_threshold"`
	CoolDown      Duration `yaml:"cool_down"`
}

// ChannelConfig holds update channel settings.
type ChannelConfig struct {
	Capacity int `yaml:"capacity"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	retry := recovery.DefaultRetryPolicy()
	breaker := recovery.DefaultBreakerSettings()
	return &Config{
		Collection: CollectionConfig{
			Interval:              Duration{time.Second},
			CategoryPolicy:        scheduler.PerCategory.String(),
			FetchTimeout:          Duration{5 * time.Second},
			ProcessorSampleWindow: Duration{200 * time.Millisecond},
			CollectOnStart:        true,
			TrendSize:             degradation.DefaultTrendSize,
		},
		Cache: CacheConfig{
			Capacity:  16,
			TierTwo:   TierTwoFile,
			Dir:       defaultCacheDir(),
			MaxSizeMB: 10,
			Redis: RedisConfig{
				Addr: "localhost:6379",
				TTL:  Duration{time.Hour},
			},
			WriteTimeout: Duration{2 * time.Second},
		},
		Recovery: RecoveryConfig{
			Retry: RetryConfig{
				MaxAttempts: retry.MaxAttempts,
				BaseDelay:   Duration{retry.BaseDelay},
				MaxDelay:    Duration{retry.MaxDelay},
				Multiplier:  retry.Multiplier,
			},
			Breaker: BreakerConfig{
				TripThreshold: breaker.TripThreshold,
				CoolDown:      Duration{breaker.CoolDown},
			},
		},
		Channel: ChannelConfig{Capacity: 64},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Format: "console",
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables override values from the byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil)
	}

	return LoadFromBytes(data)
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	Interval      time.Duration
	LogLevel      string
	MetricsListen string
	TierTwo       string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cli.Interval > 0 {
		cfg.Collection.Interval = Duration{cli.Interval}
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.MetricsListen != "" {
		cfg.Metrics.Listen = cli.MetricsListen
	}
	if cli.TierTwo != "" {
		cfg.Cache.TierTwo = cli.TierTwo
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("VITALIS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VITALIS_INTERVAL: %w", err)
		}
		cfg.Collection.Interval = Duration{d}
	}
	if v := os.Getenv("VITALIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VITALIS_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
		cfg.Cache.TierTwo = TierTwoRedis
	}
	if v := os.Getenv("VITALIS_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VITALIS_REDIS_DB: %w", err)
		}
		cfg.Cache.Redis.DB = db
	}
	if v := os.Getenv("VITALIS_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("VITALIS_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	return nil
}

// Validate checks bounds and enumerations.
func (c *Config) Validate() error {
	if err := scheduler.ValidateInterval(c.Collection.Interval.Duration); err != nil {
		return fmt.Errorf("collection.interval: %w", err)
	}
	if _, err := scheduler.ParseCategoryPolicy(c.Collection.CategoryPolicy); err != nil {
		return fmt.Errorf("collection.category_policy: %w", err)
	}
	if c.Collection.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("collection.fetch_timeout must be positive")
	}
	if c.Collection.ProcessorSampleWindow.Duration < 0 {
		return fmt.Errorf("collection.processor_sample_window must not be negative")
	}
	if c.Collection.TrendSize < 2 {
		return fmt.Errorf("collection.trend_size must be at least 2 (got %d)", c.Collection.TrendSize)
	}

	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be at least 1 (got %d)", c.Cache.Capacity)
	}
	switch c.Cache.TierTwo {
	case TierTwoNone:
	case TierTwoFile:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required for the file tier")
		}
		if c.Cache.MaxSizeMB < 0 {
			return fmt.Errorf("cache.max_size_mb must not be negative")
		}
	case TierTwoRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis tier")
		}
	default:
		return fmt.Errorf("cache.tier_two must be one of none, file, redis (got %q)", c.Cache.TierTwo)
	}

	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("recovery.retry: %w", err)
	}
	if c.Recovery.Breaker.TripThreshold < 1 {
		return fmt.Errorf("recovery.breaker.trip_threshold must be at least 1")
	}
	if c.Recovery.Breaker.CoolDown.Duration <= 0 {
		return fmt.Errorf("recovery.breaker.cool_down must be positive")
	}

	if c.Channel.Capacity < 1 {
		return fmt.Errorf("channel.capacity must be at least 1 (got %d)", c.Channel.Capacity)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}

// SchedulerOptions converts the collection section. Call Validate first.
func (c *Config) SchedulerOptions() scheduler.Options {
	opts := scheduler.DefaultOptions()
	opts.Interval = c.Collection.Interval.Duration
	opts.FetchTimeout = c.Collection.FetchTimeout.Duration
	opts.CollectOnStart = c.Collection.CollectOnStart
	opts.CategoryPolicy, _ = scheduler.ParseCategoryPolicy(c.Collection.CategoryPolicy)
	opts.FlushTimeout = c.Cache.WriteTimeout.Duration
	return opts
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() recovery.RetryPolicy {
	r := c.Recovery.Retry
	return recovery.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay.Duration,
		MaxDelay:    r.MaxDelay.Duration,
		Multiplier:  r.Multiplier,
	}
}

// BreakerSettings converts the breaker section.
func (c *Config) BreakerSettings() recovery.BreakerSettings {
	return recovery.BreakerSettings{
		TripThreshold: c.Recovery.Breaker.TripThreshold,
		CoolDown:      c.Recovery.Breaker.CoolDown.Duration,
	}
}
