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

package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	StoresLoading *prometheus.GaugeVec
	StoresLoaded  *prometheus.GaugeVec
	StoresClosing *prometheus.GaugeVec

	MemtableSize       *prometheus.GaugeVec
	FlushDurations     *prometheus.HistogramVec
	Compactions        *prometheus.CounterVec
	TableCount         *prometheus.GaugeVec
	TableCacheRequests *prometheus.CounterVec
	BloomFilterChecks  *prometheus.CounterVec
	CleanupRetries     *prometheus.CounterVec
	BackgroundFailures *prometheus.CounterVec
	BackpressureWaits  *prometheus.CounterVec
}

var (
	msBuckets = []float64{10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000}

	metrics     *PrometheusMetrics
	metricsOnce sync.Once
)

// GetMetrics returns the process-wide metrics, registered with the default
// prometheus registry on first use.
func GetMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		metrics = NewPrometheusMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// NewNoopMetrics returns working vectors that are not registered anywhere.
func NewNoopMetrics() *PrometheusMetrics {
	return NewPrometheusMetrics(noop)
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		StoresLoading: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpstore_stores_loading",
			Help: "Number of temporal property stores that are being opened",
		}, []string{"store"}),
		StoresLoaded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpstore_stores_loaded",
			Help: "Number of open temporal property stores",
		}, []string{"store"}),
		StoresClosing: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpstore_stores_closing",
			Help: "Number of temporal property stores that are draining on shutdown",
		}, []string{"store"}),

		MemtableSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpstore_memtable_size_bytes",
			Help: "Approximate size of the active memtable",
		}, []string{"store"}),
		FlushDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tpstore_flush_durations_ms",
			Help:    "Duration of background operations in ms",
			Buckets: msBuckets,
		}, []string{"store", "operation"}),
		Compactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tpstore_compactions_total",
			Help: "Number of files written by kind of compaction",
		}, []string{"store", "property", "kind"}),
		TableCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tpstore_tables",
			Help: "Number of sorted tables by tier",
		}, []string{"store", "property", "tier"}),
		TableCacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tpstore_table_cache_requests_total",
			Help: "Table cache lookups by result",
		}, []string{"store", "result"}),
		BloomFilterChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tpstore_bloom_filter_checks_total",
			Help: "Bloom filter checks of point lookups by result",
		}, []string{"store", "result"}),
		CleanupRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tpstore_cleanup_retries_total",
			Help: "Attempts to delete obsolete files that failed before",
		}, []string{"store"}),
		BackgroundFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tpstore_background_failures_total",
			Help: "Background merges that failed and were folded back into memory",
		}, []string{"store"}),
		BackpressureWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tpstore_backpressure_waits_total",
			Help: "Writers that had to wait for an in-flight memtable hand-off",
		}, []string{"store"}),
	}
}
