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
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// FromEnv overrides config with the TPSTORE_* environment variables that
// are set.
func FromEnv(config *Config) error {
	if v := os.Getenv("TPSTORE_DATA_PATH"); v != "" {
		config.DataPath = v
	}

	if v := os.Getenv("TPSTORE_MEMTABLE_THRESHOLD_BYTES"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parse TPSTORE_MEMTABLE_THRESHOLD_BYTES as uint")
		}
		config.MemTableThreshold = parsed
	}

	if v := os.Getenv("TPSTORE_BUFFER_THRESHOLD_BYTES"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parse TPSTORE_BUFFER_THRESHOLD_BYTES as uint")
		}
		config.BufferThreshold = parsed
	}

	if v := os.Getenv("TPSTORE_PROMOTION_THRESHOLD"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse TPSTORE_PROMOTION_THRESHOLD as int")
		}
		config.PromotionThreshold = parsed
	}

	if v := os.Getenv("TPSTORE_TABLE_CACHE_SIZE"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse TPSTORE_TABLE_CACHE_SIZE as int")
		}
		config.TableCacheSize = parsed
	}

	if v := os.Getenv("TPSTORE_MAINTENANCE_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parse TPSTORE_MAINTENANCE_INTERVAL as duration")
		}
		config.MaintenanceInterval = parsed
	}

	if v := os.Getenv("TPSTORE_BLOOM_FALSE_POSITIVE_RATE"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "parse TPSTORE_BLOOM_FALSE_POSITIVE_RATE as float")
		}
		config.BloomFalsePositiveRate = parsed
	}

	if v := os.Getenv("TPSTORE_METRICS_ENABLED"); v != "" {
		config.MetricsEnabled = enabled(v)
	}

	return nil
}

func enabled(value string) bool {
	switch value {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}
