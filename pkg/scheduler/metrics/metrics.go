/*
Copyright 2019 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics holds the Prometheus instrumentation for the
// scheduling loop: attempt counts, per-plugin rejection counts, and
// pipeline latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "libscheduler"

// Metrics bundles one loop's Prometheus collectors behind its own
// Registry, so multiple Schedulers in the same process (tests, or a
// multi-cluster binary) never collide on metric registration.
type Metrics struct {
	registry *prometheus.Registry

	assigned        prometheus.Counter
	rejectedByPlugin *prometheus.CounterVec
	schedulingLatency prometheus.Histogram
	queueDepth      prometheus.Gauge
}

// New builds a Metrics bundle and registers its collectors with a
// fresh Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		assigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pod_assignments_total",
			Help:      "Total number of pods successfully bound to a node.",
		}),
		rejectedByPlugin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pod_rejections_total",
			Help:      "Total number of scheduling attempts that failed, labeled by the rejecting plugin.",
		}, []string{"plugin"}),
		schedulingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduling_attempt_duration_seconds",
			Help:      "Time taken per scheduling cycle, from snapshot to select or rejection.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_queue_depth",
			Help:      "Number of pods currently waiting in the active queue.",
		}),
	}
	reg.MustRegister(m.assigned, m.rejectedByPlugin, m.schedulingLatency, m.queueDepth)
	return m
}

// Registry returns the collector registry, for wiring into an HTTP
// handler via promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IncAssigned records one successful placement.
func (m *Metrics) IncAssigned() { m.assigned.Inc() }

// IncRejected records one failed attempt, attributed to plugin. An
// empty plugin name (a rejection with no single responsible plugin)
// is recorded under "unknown".
func (m *Metrics) IncRejected(plugin string) {
	if plugin == "" {
		plugin = "unknown"
	}
	m.rejectedByPlugin.WithLabelValues(plugin).Inc()
}

// ObserveSchedulingLatency records the wall-clock time one cycle took.
func (m *Metrics) ObserveSchedulingLatency(d time.Duration) {
	m.schedulingLatency.Observe(d.Seconds())
}

// SetQueueDepth records the active queue's current length.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
