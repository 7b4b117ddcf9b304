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

package tpstore

import (
	"time"

	"github.com/pkg/errors"

	"github.com/weaviate/tpstore/usecases/config"
	"github.com/weaviate/tpstore/usecases/monitoring"
)

type StoreOption func(s *Store) error

func WithMemTableThreshold(threshold uint64) StoreOption {
	return func(s *Store) error {
		if threshold == 0 {
			return errors.New("memtable threshold must be > 0")
		}
		s.memtableThreshold = threshold
		return nil
	}
}

func WithBufferThreshold(threshold uint64) StoreOption {
	return func(s *Store) error {
		if threshold == 0 {
			return errors.New("buffer threshold must be > 0")
		}
		s.bufferThreshold = threshold
		return nil
	}
}

// WithPromotionThreshold sets the number of unstable files at which the
// next new file folds all of them into a stable file.
func WithPromotionThreshold(files int) StoreOption {
	return func(s *Store) error {
		if files < 1 {
			return errors.Errorf("promotion threshold must be >= 1, got %d", files)
		}
		s.promotionThreshold = files
		return nil
	}
}

func WithTableCacheSize(size int) StoreOption {
	return func(s *Store) error {
		if size < 1 {
			return errors.Errorf("table cache size must be >= 1, got %d", size)
		}
		s.tableCacheSize = size
		return nil
	}
}

// WithMaintenanceInterval sets how often cleanup retries and seek
// compactions run. Zero disables the cycle.
func WithMaintenanceInterval(interval time.Duration) StoreOption {
	return func(s *Store) error {
		s.maintenanceInterval = interval
		return nil
	}
}

func WithBloomFalsePositiveRate(rate float64) StoreOption {
	return func(s *Store) error {
		if rate <= 0 || rate >= 1 {
			return errors.Errorf("bloom false positive rate must be in (0, 1), got %v", rate)
		}
		s.bloomFalsePositiveRate = rate
		return nil
	}
}

func WithPrometheusMetrics(metrics *monitoring.PrometheusMetrics) StoreOption {
	return func(s *Store) error {
		s.promMetrics = metrics
		return nil
	}
}

func WithTracer(trace TraceFunc) StoreOption {
	return func(s *Store) error {
		s.trace = trace
		return nil
	}
}

func WithIndexUpdaters(factory IndexUpdaterFactory) StoreOption {
	return func(s *Store) error {
		if factory == nil {
			factory = noopIndexUpdaters
		}
		s.indexUpdaters = factory
		return nil
	}
}

// OptionsFromConfig translates a validated config into store options.
func OptionsFromConfig(cfg config.Config) []StoreOption {
	opts := []StoreOption{
		WithMemTableThreshold(cfg.MemTableThreshold),
		WithBufferThreshold(cfg.BufferThreshold),
		WithPromotionThreshold(cfg.PromotionThreshold),
		WithTableCacheSize(cfg.TableCacheSize),
		WithMaintenanceInterval(cfg.MaintenanceInterval),
		WithBloomFalsePositiveRate(cfg.BloomFalsePositiveRate),
	}
	if cfg.MetricsEnabled {
		opts = append(opts, WithPrometheusMetrics(monitoring.GetMetrics()))
	}
	return opts
}
