// Package config loads engine configuration from viper and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/spf13/viper"
)

// Direct environment toggles honored in addition to viper keys.
const (
	EnvDisableColumnMapCache = "RECEIPTS_DISABLE_COLUMN_MAP_CACHE"
	EnvVectorize             = "RECEIPTS_VECTORIZE"
)

// Config holds all engine configuration.
type Config struct {
	Rules          RulesConfig
	Cache          CacheConfig
	Extraction     ExtractionConfig
	Classification ClassificationConfig
	Engine         EngineConfig
	Storage        StorageConfig
}

// RulesConfig locates rule documents.
type RulesConfig struct {
	Dir       string
	HotReload bool
}

// CacheConfig controls the column-mapping cache.
type CacheConfig struct {
	MaxEntries int
	Enabled    bool
}

// ExtractionConfig controls tabular extraction.
type ExtractionConfig struct {
	Bulk bool
}

// ClassificationConfig overrides classification settings from rule documents.
// A zero ReviewThreshold keeps the rule document value.
type ClassificationConfig struct {
	ReviewThreshold float64
}

// EngineConfig controls document processing.
type EngineConfig struct {
	Workers int
}

// StorageConfig locates the audit database.
type StorageConfig struct {
	DBPath string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rules.dir", "./rules")
	v.SetDefault("rules.hot_reload", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("extraction.bulk", true)
	v.SetDefault("classification.review_threshold", 0.0)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("storage.db_path", "~/.local/share/receipts/receipts.db")
}

// Load reads configuration from v. It follows this precedence:
// 1. Viper configuration (config file, flags or RECEIPTS_ env vars)
// 2. The direct cache and vectorize environment toggles
// 3. Default values
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		Rules: RulesConfig{
			Dir:       ExpandPath(v.GetString("rules.dir")),
			HotReload: v.GetBool("rules.hot_reload"),
		},
		Cache: CacheConfig{
			Enabled:    v.GetBool("cache.enabled"),
			MaxEntries: v.GetInt("cache.max_entries"),
		},
		Extraction: ExtractionConfig{
			Bulk: v.GetBool("extraction.bulk"),
		},
		Classification: ClassificationConfig{
			ReviewThreshold: v.GetFloat64("classification.review_threshold"),
		},
		Engine: EngineConfig{
			Workers: v.GetInt("engine.workers"),
		},
		Storage: StorageConfig{
			DBPath: ExpandPath(v.GetString("storage.db_path")),
		},
	}

	if disabled, ok := envBool(EnvDisableColumnMapCache); ok && disabled {
		cfg.Cache.Enabled = false
	}
	if vectorize, ok := envBool(EnvVectorize); ok {
		cfg.Extraction.Bulk = vectorize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Rules.Dir == "" {
		return fmt.Errorf("%w: rules.dir is required", common.ErrMissingConfig)
	}
	if c.Cache.MaxEntries < 4 {
		return fmt.Errorf("%w: cache.max_entries must be at least 4, got %d", common.ErrInvalidConfig, c.Cache.MaxEntries)
	}
	if c.Classification.ReviewThreshold < 0 || c.Classification.ReviewThreshold > 1 {
		return fmt.Errorf("%w: classification.review_threshold must be between 0 and 1, got %.2f",
			common.ErrInvalidConfig, c.Classification.ReviewThreshold)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("%w: engine.workers must be positive, got %d", common.ErrInvalidConfig, c.Engine.Workers)
	}
	return nil
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return b, true
}
