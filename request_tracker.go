// request_tracker.go: in-flight foreign call tracking and draining
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// RequestTracker counts foreign calls in flight per plugin and records call
// totals and latencies.
type RequestTracker struct {
	active map[string]*atomic.Int64
	mu     sync.RWMutex

	totalCalls atomic.Int64
	metrics    MetricsCollector
}

// NewRequestTracker creates a tracker reporting to metrics, which may be nil.
func NewRequestTracker(metrics MetricsCollector) *RequestTracker {
	return &RequestTracker{
		active:  make(map[string]*atomic.Int64),
		metrics: metrics,
	}
}

func (rt *RequestTracker) counter(plugin string) *atomic.Int64 {
	rt.mu.RLock()
	counter, exists := rt.active[plugin]
	rt.mu.RUnlock()
	if exists {
		return counter
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	// Double-check after acquiring write lock
	if counter, exists = rt.active[plugin]; !exists {
		counter = &atomic.Int64{}
		rt.active[plugin] = counter
	}
	return counter
}

// StartCall marks a call into plugin as in flight and returns its start
// timestamp for EndCall.
func (rt *RequestTracker) StartCall(plugin string) int64 {
	n := rt.counter(plugin).Add(1)
	rt.totalCalls.Add(1)
	if rt.metrics != nil {
		rt.metrics.SetGauge(MetricCallsInFlight, map[string]string{"plugin": plugin}, float64(n))
	}
	return timecache.CachedTimeNano()
}

// EndCall marks the call started at start as finished.
func (rt *RequestTracker) EndCall(plugin, function string, start int64, err error) {
	n := rt.counter(plugin).Add(-1)
	if rt.metrics == nil {
		return
	}

	labels := map[string]string{"plugin": plugin, "function": function}
	rt.metrics.SetGauge(MetricCallsInFlight, map[string]string{"plugin": plugin}, float64(n))
	rt.metrics.IncrementCounter(MetricCallsTotal, labels, 1)
	if err != nil {
		rt.metrics.IncrementCounter(MetricCallErrors, map[string]string{
			"plugin":   plugin,
			"function": function,
			"code":     codeOf(err),
		}, 1)
	}

	elapsed := time.Duration(timecache.CachedTimeNano() - start)
	if elapsed < 0 {
		elapsed = 0
	}
	rt.metrics.RecordHistogram(MetricCallDuration, labels, elapsed.Seconds())
}

// ActiveCalls returns the number of calls in flight for plugin.
func (rt *RequestTracker) ActiveCalls(plugin string) int64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if counter, exists := rt.active[plugin]; exists {
		return counter.Load()
	}
	return 0
}

// AllActiveCalls returns in-flight counts for every plugin seen so far.
func (rt *RequestTracker) AllActiveCalls() map[string]int64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	result := make(map[string]int64, len(rt.active))
	for plugin, counter := range rt.active {
		result[plugin] = counter.Load()
	}
	return result
}

// TotalCalls returns the number of calls started since creation.
func (rt *RequestTracker) TotalCalls() int64 {
	return rt.totalCalls.Load()
}

func (rt *RequestTracker) totalActive() int64 {
	var total int64
	for _, n := range rt.AllActiveCalls() {
		total += n
	}
	return total
}

// WaitForDrain blocks until no call is in flight or ctx is done.
func (rt *RequestTracker) WaitForDrain(ctx context.Context) error {
	if rt.totalActive() == 0 {
		return nil
	}

	start := time.Now()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &DrainTimeoutError{
				RemainingCalls: rt.totalActive(),
				DrainDuration:  time.Since(start),
			}
		case <-ticker.C:
			if rt.totalActive() == 0 {
				return nil
			}
		}
	}
}

// DrainTimeoutError reports calls still running when draining gave up.
type DrainTimeoutError struct {
	RemainingCalls int64
	DrainDuration  time.Duration
}

func (e *DrainTimeoutError) Error() string {
	return fmt.Sprintf("drain timeout: %d plugin calls still active after %v", e.RemainingCalls, e.DrainDuration)
}
