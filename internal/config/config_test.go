package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/vitalis/sampler/internal/scheduler"
)

func TestLoadLayered_CLIOverridesEverything(t *testing.T) {
	embedded := []byte("collection:\n  interval: 3s\nlogging:\n  level: warn\n")
	t.Setenv("VITALIS_INTERVAL", "4s")
	cli := CLIOverrides{Interval: 5 * time.Second, LogLevel: "debug"}

	cfg, err := LoadLayered(cli, embedded, "")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Collection.Interval.Duration)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadLayered_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sampler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection:\n  interval: 2s\n  category_policy: whole-cycle\n"), 0600))
	t.Setenv("VITALIS_INTERVAL", "750ms")
	t.Setenv("VITALIS_CACHE_DIR", dir)

	cfg, err := LoadLayered(CLIOverrides{}, []byte("collection:\n  interval: 3s\n"), path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Collection.Interval.Duration)
	assert.Equal(t, "whole-cycle", cfg.Collection.CategoryPolicy)
	assert.Equal(t, dir, cfg.Cache.Dir)
}

func TestLoadLayered_FileOverridesEmbedded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel:\n  capacity: 5\n"), 0600))

	cfg, err := LoadLayered(CLIOverrides{}, []byte("channel:\n  capacity: 9\ncache:\n  capacity: 3\n"), path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Channel.Capacity)
	assert.Equal(t, 3, cfg.Cache.Capacity, "embedded value survives")
}

func TestLoadLayered_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Collection.Interval.Duration)
	assert.Equal(t, TierTwoFile, cfg.Cache.TierTwo)
	assert.Equal(t, 60, cfg.Collection.TrendSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadLayered_MissingFileIgnored(t *testing.T) {
	_, err := LoadLayered(CLIOverrides{}, nil, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoadLayered_BadEnv(t *testing.T) {
	t.Setenv("VITALIS_INTERVAL", "soon")
	_, err := LoadLayered(CLIOverrides{}, nil, "")
	assert.Error(t, err)
}

func TestEnv_RedisAddrSelectsRedisTier(t *testing.T) {
	t.Setenv("VITALIS_REDIS_ADDR", "cache:6379")
	t.Setenv("VITALIS_REDIS_DB", "2")
	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)
	assert.Equal(t, TierTwoRedis, cfg.Cache.TierTwo)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Channel.Capacity)
}

func TestLoadFromBytes_BadDuration(t *testing.T) {
	_, err := LoadFromBytes([]byte("collection:\n  interval: fast\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval too short", func(c *Config) { c.Collection.Interval = Duration{50 * time.Millisecond} }},
		{"interval too long", func(c *Config) { c.Collection.Interval = Duration{11 * time.Second} }},
		{"unknown policy", func(c *Config) { c.Collection.CategoryPolicy = "some" }},
		{"zero fetch timeout", func(c *Config) { c.Collection.FetchTimeout = Duration{} }},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"unknown tier", func(c *Config) { c.Cache.TierTwo = "s3" }},
		{"file tier without dir", func(c *Config) { c.Cache.Dir = "" }},
		{"redis tier without addr", func(c *Config) { c.Cache.TierTwo = TierTwoRedis; c.Cache.Redis.Addr = "" }},
		{"no attempts", func(c *Config) { c.Recovery.Retry.MaxAttempts = 0 }},
		{"flat multiplier", func(c *Config) { c.Recovery.Retry.Multiplier = 1 }},
		{"base above max", func(c *Config) { c.Recovery.Retry.BaseDelay = Duration{time.Minute} }},
		{"zero threshold", func(c *Config) { c.Recovery.Breaker.TripThreshold = 0 }},
		{"zero cool-down", func(c *Config) { c.Recovery.Breaker.CoolDown = Duration{} }},
		{"trend too short", func(c *Config) { c.Collection.TrendSize = 1 }},
		{"zero channel", func(c *Config) { c.Channel.Capacity = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Cache.Dir = t.TempDir()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collection.Interval = Duration{2 * time.Second}
	cfg.Collection.CategoryPolicy = "whole-cycle"
	cfg.Collection.CollectOnStart = false

	opts := cfg.SchedulerOptions()
	assert.Equal(t, 2*time.Second, opts.Interval)
	assert.Equal(t, scheduler.WholeCycle, opts.CategoryPolicy)
	assert.False(t, opts.CollectOnStart)

	p := cfg.RetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)

	b := cfg.BreakerSettings()
	assert.Equal(t, uint32(3), b.TripThreshold)
	assert.Equal(t, 30*time.Second, b.CoolDown)
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "sampler.yaml")

	cfg := DefaultConfig()
	cfg.Collection.Interval = Duration{1500 * time.Millisecond}
	require.NoError(t, WriteConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, loaded.Collection.Interval.Duration)
}
