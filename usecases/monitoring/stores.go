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

import "github.com/prometheus/client_golang/prometheus"

// Move the store from unloaded to loading
func (pm *PrometheusMetrics) StartLoadingStore(store string) {
	if pm == nil {
		return
	}

	pm.StoresLoading.With(prometheus.Labels{"store": store}).Inc()
}

// Move the store from loading to loaded
func (pm *PrometheusMetrics) FinishLoadingStore(store string) {
	if pm == nil {
		return
	}

	labels := prometheus.Labels{"store": store}
	pm.StoresLoading.With(labels).Dec()
	pm.StoresLoaded.With(labels).Inc()
}

// Move the store from loaded to closing
func (pm *PrometheusMetrics) StartClosingStore(store string) {
	if pm == nil {
		return
	}

	labels := prometheus.Labels{"store": store}
	pm.StoresLoaded.With(labels).Dec()
	pm.StoresClosing.With(labels).Inc()
}

// Move the store from closing to unloaded
func (pm *PrometheusMetrics) FinishClosingStore(store string) {
	if pm == nil {
		return
	}

	pm.StoresClosing.With(prometheus.Labels{"store": store}).Dec()
}
