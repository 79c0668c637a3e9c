// Package metricstest provides an in-memory implementation of the metrics
// interface for tests.
package metricstest

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rgwgateway/rgw/metrics"
)

const (
	KeyRouteLookup   = "route.lookup"
	KeyRouteFailures = "route.failures"
	KeyFilterRequest = "filter.%s.request"
	KeyBackend       = "upstream.%s"
	KeyBackendErrors = "upstream.%s.errors"
	KeyServe         = "serve.%s.%s.%d"
	KeyInvalidRoute  = "route.invalid.%s.%s"
)

type MockMetrics struct {
	mu sync.Mutex

	counters map[string]int64
	gauges   map[string]float64
	measures map[string][]time.Duration
	Now      time.Time
}

var _ metrics.Metrics = &MockMetrics{}

//
// Public thread safe access to metrics
//

func (m *MockMetrics) WithCounters(f func(counters map[string]int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	f(m.counters)
}

func (m *MockMetrics) WithGauges(f func(map[string]float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges == nil {
		m.gauges = make(map[string]float64)
	}
	f(m.gauges)
}

func (m *MockMetrics) WithMeasures(f func(measures map[string][]time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.measures == nil {
		m.measures = make(map[string][]time.Duration)
	}
	f(m.measures)
}

func (m *MockMetrics) Counter(key string) (v int64, ok bool) {
	m.WithCounters(func(c map[string]int64) {
		v, ok = c[key]
	})
	return
}

func (m *MockMetrics) Gauge(key string) (v float64, ok bool) {
	m.WithGauges(func(g map[string]float64) {
		v, ok = g[key]
	})
	return
}

func (m *MockMetrics) Timer(key string) (d []time.Duration, ok bool) {
	m.WithMeasures(func(measures map[string][]time.Duration) {
		d, ok = measures[key]
	})
	return
}

//
// Metrics interface implementation
//

func (m *MockMetrics) since(start time.Time) time.Duration {
	if m.Now.IsZero() {
		return time.Since(start)
	}

	return m.Now.Sub(start)
}

func (m *MockMetrics) MeasureSince(key string, start time.Time) {
	d := m.since(start)
	m.WithMeasures(func(measures map[string][]time.Duration) {
		measures[key] = append(measures[key], d)
	})
}

func (m *MockMetrics) IncCounter(key string) {
	m.WithCounters(func(counters map[string]int64) {
		counters[key]++
	})
}

func (m *MockMetrics) UpdateGauge(key string, value float64) {
	m.WithGauges(func(g map[string]float64) {
		g[key] = value
	})
}

func (m *MockMetrics) MeasureRouteLookup(start time.Time) {
	m.MeasureSince(KeyRouteLookup, start)
}

func (m *MockMetrics) MeasureFilterRequest(filterName string, start time.Time) {
	m.MeasureSince(fmt.Sprintf(KeyFilterRequest, filterName), start)
}

func (m *MockMetrics) MeasureBackend(routeId string, start time.Time) {
	m.MeasureSince(fmt.Sprintf(KeyBackend, routeId), start)
}

func (m *MockMetrics) MeasureServe(routeId, method string, code int, start time.Time) {
	m.MeasureSince(fmt.Sprintf(KeyServe, routeId, method, code), start)
}

func (m *MockMetrics) IncRoutingFailures() {
	m.IncCounter(KeyRouteFailures)
}

func (m *MockMetrics) IncErrorsBackend(routeId string) {
	m.IncCounter(fmt.Sprintf(KeyBackendErrors, routeId))
}

func (m *MockMetrics) SetInvalidRoute(routeId, reason string) {
	m.UpdateGauge(fmt.Sprintf(KeyInvalidRoute, routeId, reason), 1)
}

func (m *MockMetrics) ResetInvalidRoutes() {
	m.WithGauges(func(g map[string]float64) {
		for k := range g {
			if strings.HasPrefix(k, "route.invalid.") {
				delete(g, k)
			}
		}
	})
}

func (*MockMetrics) RegisterHandler(string, *http.ServeMux) {}
