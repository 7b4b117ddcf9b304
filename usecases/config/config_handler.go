//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultMemTableThreshold      = 4 * 1024 * 1024
	DefaultBufferThreshold        = 10 * 1024 * 1024
	DefaultPromotionThreshold     = 5
	DefaultTableCacheSize         = 25
	DefaultMaintenanceInterval    = 10 * time.Second
	DefaultBloomFalsePositiveRate = 0.01
	DefaultDataPath               = "./data"
)

// Config configures one temporal property store.
type Config struct {
	DataPath               string        `json:"data_path" yaml:"data_path"`
	MemTableThreshold      uint64        `json:"memtable_threshold_bytes" yaml:"memtable_threshold_bytes"`
	BufferThreshold        uint64        `json:"buffer_threshold_bytes" yaml:"buffer_threshold_bytes"`
	PromotionThreshold     int           `json:"promotion_threshold" yaml:"promotion_threshold"`
	TableCacheSize         int           `json:"table_cache_size" yaml:"table_cache_size"`
	MaintenanceInterval    time.Duration `json:"maintenance_interval" yaml:"maintenance_interval"`
	BloomFalsePositiveRate float64       `json:"bloom_false_positive_rate" yaml:"bloom_false_positive_rate"`
	MetricsEnabled         bool          `json:"metrics_enabled" yaml:"metrics_enabled"`
}

func Default() Config {
	return Config{
		DataPath:               DefaultDataPath,
		MemTableThreshold:      DefaultMemTableThreshold,
		BufferThreshold:        DefaultBufferThreshold,
		PromotionThreshold:     DefaultPromotionThreshold,
		TableCacheSize:         DefaultTableCacheSize,
		MaintenanceInterval:    DefaultMaintenanceInterval,
		BloomFalsePositiveRate: DefaultBloomFalsePositiveRate,
	}
}

// LoadFile reads a yaml config on top of the defaults. Keys missing from the
// file keep their default.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	contents, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config file %q", path)
	}
	if err := yaml.UnmarshalStrict(contents, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config file %q", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DataPath == "" {
		return errors.New("data_path must be set")
	}
	if c.MemTableThreshold == 0 {
		return errors.New("memtable_threshold_bytes must be > 0")
	}
	if c.BufferThreshold == 0 {
		return errors.New("buffer_threshold_bytes must be > 0")
	}
	if c.PromotionThreshold < 1 {
		return errors.Errorf("promotion_threshold must be >= 1, got %d", c.PromotionThreshold)
	}
	if c.TableCacheSize < 1 {
		return errors.Errorf("table_cache_size must be >= 1, got %d", c.TableCacheSize)
	}
	if c.MaintenanceInterval < 0 {
		return errors.Errorf("maintenance_interval must not be negative, got %s", c.MaintenanceInterval)
	}
	if c.BloomFalsePositiveRate <= 0 || c.BloomFalsePositiveRate >= 1 {
		return errors.Errorf("bloom_false_positive_rate must be in (0, 1), got %v",
			c.BloomFalsePositiveRate)
	}
	return nil
}
