// Package config groups the immutable bundle of tunables that drive the
// caching strategy engine. Values are loaded once at startup (directly via
// struct literal or from YAML) and never mutated afterward; every
// collaborator receives the bundle (or the sub-section it needs) as an
// explicit constructor parameter, the way the reference cache library wires
// its own config.Cache into cache.New / evictor.New / lifetimer.New.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full tunable surface for the caching layer.
type Config struct {
	// BaseTTLSeconds is the base physical TTL for positive entries.
	BaseTTLSeconds int `yaml:"base_ttl_seconds"`

	// TTLJitterSeconds is the inclusive upper bound of the jitter offset
	// added on top of BaseTTLSeconds by putWithRandomJitter / putWithHashJitter.
	TTLJitterSeconds int `yaml:"ttl_jitter_seconds"`

	// LockTimeoutMs bounds a DistributedLock lease; the lock-wait backoff in
	// loadWithLock is derived from this value (LockTimeoutMs/2).
	LockTimeoutMs int `yaml:"lock_timeout_ms"`

	// NullCacheTTLSeconds is the TTL applied to negative (sentinel) entries.
	NullCacheTTLSeconds int `yaml:"null_cache_ttl_seconds"`

	// LogicalExpireSeconds is the time until a logical-expire envelope
	// becomes stale (but remains physically present for StaleTTLBufferSeconds more).
	LogicalExpireSeconds int `yaml:"logical_expire_seconds"`

	// StaleTTLBufferSeconds is the extra physical TTL granted to SWR entries
	// on top of LogicalExpireSeconds, so a stale envelope stays observable
	// for the entire refresh window (invariant #2).
	StaleTTLBufferSeconds int `yaml:"stale_ttl_buffer_seconds"`

	// RefreshThreads sizes the RefreshExecutor's fixed worker pool.
	RefreshThreads int `yaml:"refresh_threads"`

	// SingleFlightWaitMs bounds how long a joining caller waits on an
	// in-flight load before falling back to a direct source read.
	SingleFlightWaitMs int `yaml:"single_flight_wait_ms"`

	// Compression configures optional on-the-fly gzip of serialized values
	// written to the store. Nil disables compression.
	Compression *CompressionCfg `yaml:"compression"`

	// RefreshRatePerSec optionally caps how many refresh tasks per second
	// RefreshExecutor will dispatch, on top of its bounded worker pool. Zero
	// disables the limiter (pool size alone governs throughput).
	RefreshRatePerSec int `yaml:"refresh_rate_per_sec"`

	// Redis carries connection tuning for the StoreClient's go-redis client.
	Redis RedisCfg `yaml:"redis"`
}

// CompressionCfg enables gzip compression of serialized values above
// MinSizeBytes. Declared but left unwired by the reference library's
// internal/config/compression.go; SPEC_FULL completes the wiring in
// internal/store.
type CompressionCfg struct {
	// Level is a compress/gzip level (gzip.BestSpeed..gzip.BestCompression,
	// or gzip.DefaultCompression).
	Level int `yaml:"level"`

	// MinSizeBytes is the smallest payload size compression is applied to;
	// below this, compression overhead outweighs the saving.
	MinSizeBytes int `yaml:"min_size_bytes"`
}

func (c *CompressionCfg) Enabled() bool { return c != nil }

// RedisCfg tunes the go-redis connection pool.
type RedisCfg struct {
	Addr         string        `yaml:"addr"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the spec's documented defaults (§6).
func Default() *Config {
	return &Config{
		BaseTTLSeconds:        60,
		TTLJitterSeconds:      10,
		LockTimeoutMs:         100,
		NullCacheTTLSeconds:   30,
		LogicalExpireSeconds:  60,
		StaleTTLBufferSeconds: 30,
		RefreshThreads:        4,
		SingleFlightWaitMs:    500,
		Redis: RedisCfg{
			Addr:         "127.0.0.1:6379",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Load reads a YAML config file, layering it over Default().
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}

	return cfg, nil
}

// LogicalPhysicalTTL returns the physical TTL a logical-expire entry must be
// stored with, per invariant #2.
func (c *Config) LogicalPhysicalTTL() time.Duration {
	return time.Duration(c.LogicalExpireSeconds+c.StaleTTLBufferSeconds) * time.Second
}
