// Package config implements the Config & WeightFn component (spec §4.J):
// required sizing parameters, optional tunables with defaults, and the
// pluggable weight/hasher/clock functions the cache is built from.
//
// Grounded on the teacher's internal/config package: a plain YAML-backed
// struct loaded via LoadConfig, an AdjustConfig derivation pass for fields
// computed rather than read from YAML, and nested sub-configs using the
// Enabled() bool { return cfg != nil } nil-check idiom (internal/config/
// eviction.go, lifetime.go).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidCounters    = errors.New("config: counters must be > 0")
	ErrInvalidCapacity    = errors.New("config: capacity must be > 0")
	ErrInvalidCacheWeight = errors.New("config: cache_weight must be > 0")
)

const (
	defaultShards            = 256
	defaultCommandBufferSize = 4096
	defaultAccessBufferSize  = 4096
	defaultTTLTickInterval   = time.Second
	defaultTTLBucketWidth    = time.Second
	defaultSampleSize        = 5
	defaultSoftLimitCoeff    = 0.85
)

// EvictionCfg configures the supplemental background soft-evictor. If nil,
// reclaiming weight happens only as a side effect of admitted Puts.
type EvictionCfg struct {
	CallsPerSec          int64   `yaml:"calls_per_sec"`
	BackoffSpinsPerCall  int64   `yaml:"backoff_spins_per_call"`
	SoftLimitCoefficient float64 `yaml:"soft_limit_coefficient"`

	// SoftWeightLimit is derived during AdjustConfig, not read from YAML.
	SoftWeightLimit int64
}

func (c *EvictionCfg) Enabled() bool { return c != nil }

// TelemetryCfg configures the periodic slog delta-snapshot logger. If nil,
// no telemetry loop runs.
type TelemetryCfg struct {
	Interval time.Duration `yaml:"interval"`
}

func (c *TelemetryCfg) Enabled() bool { return c != nil }

// Params holds every YAML-loadable scalar of spec §4.J. Required fields
// (Counters, Capacity, CacheWeight) are validated by Validate; the rest
// default via AdjustConfig when left at their zero value.
type Params struct {
	Counters    int   `yaml:"counters"`
	Capacity    int   `yaml:"capacity"`
	CacheWeight int64 `yaml:"cache_weight"`

	Shards            int           `yaml:"shards"`
	CommandBufferSize int           `yaml:"command_buffer_size"`
	AccessBufferSize  int           `yaml:"access_buffer_size"`
	TTLTickInterval   time.Duration `yaml:"ttl_tick_interval"`
	TTLBucketWidth    time.Duration `yaml:"ttl_bucket_width"`
	SampleSize        int           `yaml:"sample_size"`

	Eviction  *EvictionCfg  `yaml:"eviction"`
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}

// Validate checks the three required fields, per spec §4.J.
func (p *Params) Validate() error {
	if p.Counters <= 0 {
		return ErrInvalidCounters
	}
	if p.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if p.CacheWeight <= 0 {
		return ErrInvalidCacheWeight
	}
	return nil
}

// AdjustConfig fills in defaults for every optional field and derives
// values that aren't read from YAML directly (SoftWeightLimit).
func (p *Params) AdjustConfig() {
	if p.Shards <= 0 {
		p.Shards = defaultShards
	}
	if p.CommandBufferSize <= 0 {
		p.CommandBufferSize = defaultCommandBufferSize
	}
	if p.AccessBufferSize <= 0 {
		p.AccessBufferSize = defaultAccessBufferSize
	}
	if p.TTLTickInterval <= 0 {
		p.TTLTickInterval = defaultTTLTickInterval
	}
	if p.TTLBucketWidth <= 0 {
		p.TTLBucketWidth = defaultTTLBucketWidth
	}
	if p.SampleSize <= 0 {
		p.SampleSize = defaultSampleSize
	}
	if p.Eviction.Enabled() {
		if p.Eviction.SoftLimitCoefficient <= 0 {
			p.Eviction.SoftLimitCoefficient = defaultSoftLimitCoeff
		}
		p.Eviction.SoftWeightLimit = int64(float64(p.CacheWeight) * p.Eviction.SoftLimitCoefficient)
	}
}

// LoadParams reads and validates a YAML config file, applying defaults
// before returning it.
func LoadParams(path string) (*Params, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.AdjustConfig()
	return &p, nil
}
