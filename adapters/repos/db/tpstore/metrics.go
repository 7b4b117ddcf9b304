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
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weaviate/tpstore/usecases/monitoring"
)

// Metrics are the store-wide prometheus vectors curried with the store
// label. All methods are safe to call on a nil *Metrics.
type Metrics struct {
	memtableSize       prometheus.Gauge
	flushDurations     prometheus.ObserverVec
	compactions        *prometheus.CounterVec
	tableCount         *prometheus.GaugeVec
	cacheRequests      *prometheus.CounterVec
	bloomChecks        *prometheus.CounterVec
	cleanupRetries     prometheus.Counter
	backgroundFailures prometheus.Counter
	backpressureWaits  prometheus.Counter
}

func NewMetrics(promMetrics *monitoring.PrometheusMetrics, store string) *Metrics {
	if promMetrics == nil {
		return nil
	}

	labels := prometheus.Labels{"store": store}
	return &Metrics{
		memtableSize:       promMetrics.MemtableSize.With(labels),
		flushDurations:     promMetrics.FlushDurations.MustCurryWith(labels),
		compactions:        promMetrics.Compactions.MustCurryWith(labels),
		tableCount:         promMetrics.TableCount.MustCurryWith(labels),
		cacheRequests:      promMetrics.TableCacheRequests.MustCurryWith(labels),
		bloomChecks:        promMetrics.BloomFilterChecks.MustCurryWith(labels),
		cleanupRetries:     promMetrics.CleanupRetries.With(labels),
		backgroundFailures: promMetrics.BackgroundFailures.With(labels),
		backpressureWaits:  promMetrics.BackpressureWaits.With(labels),
	}
}

func (m *Metrics) MemtableSize(size uint64) {
	if m == nil {
		return
	}

	m.memtableSize.Set(float64(size))
}

func (m *Metrics) ObserveDuration(operation string, started time.Time) {
	if m == nil {
		return
	}

	m.flushDurations.With(prometheus.Labels{"operation": operation}).
		Observe(float64(time.Since(started)) / float64(time.Millisecond))
}

func (m *Metrics) Compaction(pid int32, kind string) {
	if m == nil {
		return
	}

	m.compactions.With(prometheus.Labels{
		"property": strconv.Itoa(int(pid)),
		"kind":     kind,
	}).Inc()
}

func (m *Metrics) TableCount(pid int32, tier Tier, count int) {
	if m == nil {
		return
	}

	m.tableCount.With(prometheus.Labels{
		"property": strconv.Itoa(int(pid)),
		"tier":     tier.String(),
	}).Set(float64(count))
}

func (m *Metrics) TableCacheRequest(hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.With(prometheus.Labels{"result": result}).Inc()
}

func (m *Metrics) BloomCheck(mayContain bool) {
	if m == nil {
		return
	}

	result := "negative"
	if mayContain {
		result = "positive"
	}
	m.bloomChecks.With(prometheus.Labels{"result": result}).Inc()
}

func (m *Metrics) CleanupRetry() {
	if m == nil {
		return
	}

	m.cleanupRetries.Inc()
}

func (m *Metrics) BackgroundFailure() {
	if m == nil {
		return
	}

	m.backgroundFailures.Inc()
}

func (m *Metrics) BackpressureWait() {
	if m == nil {
		return
	}

	m.backpressureWaits.Inc()
}
