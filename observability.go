// observability.go: metrics collection for the plugin host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// Metric names recorded by the host.
const (
	MetricPluginsSkipped   = "nativeplugins_plugins_skipped_total"
	MetricPluginsLoaded    = "nativeplugins_plugins_loaded_total"
	MetricPluginLoadErrors = "nativeplugins_plugin_load_errors_total"
	MetricPluginsActive    = "nativeplugins_plugins_active"
	MetricRoutesBound      = "nativeplugins_routes_bound"
	MetricCallsTotal       = "nativeplugins_calls_total"
	MetricCallErrors       = "nativeplugins_call_errors_total"
	MetricCallsAbandoned   = "nativeplugins_calls_abandoned_total"
	MetricCallsInFlight    = "nativeplugins_calls_in_flight"
	MetricCallDuration     = "nativeplugins_call_duration_seconds"
	MetricJSONParseErrors  = "nativeplugins_json_parse_errors_total"
	MetricPanicsRecovered  = "nativeplugins_panics_recovered_total"
)

// MetricsCollector defines the interface for collecting host metrics.
//
// Any backend (Prometheus, StatsD, in-memory) can be plugged in by
// implementing it.
//
// Example usage:
//
//	collector.IncrementCounter(MetricCallsTotal,
//	    map[string]string{"plugin": "hello", "function": "hello"}, 1)
//	collector.SetGauge(MetricCallsInFlight,
//	    map[string]string{"plugin": "hello"}, 3)
//	collector.RecordHistogram(MetricCallDuration,
//	    map[string]string{"plugin": "hello"}, 0.004)
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string, value int64)
	SetGauge(name string, labels map[string]string, value float64)
	RecordHistogram(name string, labels map[string]string, value float64)

	// GetMetrics returns a point-in-time snapshot keyed by metric name and labels
	GetMetrics() map[string]interface{}
}

// histogramWindow is the number of observations kept per histogram series.
const histogramWindow = 1000

// DefaultMetricsCollector keeps metrics in memory. It backs the host's
// metrics snapshot endpoint when no other collector is configured.
type DefaultMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string]*observationRing
}

// observationRing holds the most recent histogramWindow observations.
type observationRing struct {
	values []float64
	next   int
}

func (r *observationRing) add(v float64) {
	if len(r.values) < histogramWindow {
		r.values = append(r.values, v)
		return
	}
	r.values[r.next] = v
	r.next = (r.next + 1) % histogramWindow
}

func (r *observationRing) summarize(into map[string]interface{}, key string) {
	if len(r.values) == 0 {
		return
	}
	lo, hi, sum := r.values[0], r.values[0], 0.0
	for _, v := range r.values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	into[key+"_count"] = len(r.values)
	into[key+"_sum"] = sum
	into[key+"_min"] = lo
	into[key+"_max"] = hi
	into[key+"_avg"] = sum / float64(len(r.values))
}

// NewDefaultMetricsCollector creates an empty in-memory collector.
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*observationRing),
	}
}

// IncrementCounter implements MetricsCollector
func (c *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	key := buildMetricKey(name, labels)
	c.mu.Lock()
	c.counters[key] += value
	c.mu.Unlock()
}

// SetGauge implements MetricsCollector
func (c *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	key := buildMetricKey(name, labels)
	c.mu.Lock()
	c.gauges[key] = value
	c.mu.Unlock()
}

// RecordHistogram implements MetricsCollector. Only the most recent
// observations of each series are kept.
func (c *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	key := buildMetricKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()

	ring, ok := c.histograms[key]
	if !ok {
		ring = &observationRing{}
		c.histograms[key] = ring
	}
	ring.add(value)
}

// Counter returns the current value of a counter.
func (c *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	key := buildMetricKey(name, labels)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[key]
}

// Gauge returns the current value of a gauge.
func (c *DefaultMetricsCollector) Gauge(name string, labels map[string]string) float64 {
	key := buildMetricKey(name, labels)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[key]
}

// GetMetrics implements MetricsCollector. Histograms are summarised as
// _count, _sum, _min, _max and _avg entries.
func (c *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.counters)+len(c.gauges)+5*len(c.histograms))
	for k, v := range c.counters {
		out[k] = v
	}
	for k, v := range c.gauges {
		out[k] = v
	}
	for k, ring := range c.histograms {
		ring.summarize(out, k)
	}
	return out
}

// buildMetricKey flattens name and labels into one series key, labels sorted
// by name: buildMetricKey("calls", {"plugin": "a"}) == "calls_plugin_a".
func buildMetricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('_')
		b.WriteString(k)
		b.WriteByte('_')
		b.WriteString(labels[k])
	}
	return b.String()
}
