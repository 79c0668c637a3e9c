package metrics

import (
	"net/http"
	"time"
)

// Options for initializing metrics collection.
type Options struct {
	// Common prefix for the keys of the different
	// collected metrics.
	Prefix string

	// If set, Go runtime and process metrics are collected in
	// addition to the http traffic metrics.
	EnableRuntimeMetrics bool

	// HistogramBuckets defines buckets into which the observations are counted for
	// histogram metrics.
	HistogramBuckets []float64
}

// Metrics is the interface that the gateway components use to report
// their metrics.
type Metrics interface {
	MeasureSince(key string, start time.Time)
	IncCounter(key string)
	UpdateGauge(key string, value float64)
	MeasureRouteLookup(start time.Time)
	MeasureFilterRequest(filterName string, start time.Time)
	MeasureBackend(routeId string, start time.Time)
	MeasureServe(routeId, method string, code int, start time.Time)
	IncRoutingFailures()
	IncErrorsBackend(routeId string)
	SetInvalidRoute(routeId, reason string)
	ResetInvalidRoutes()
	RegisterHandler(path string, mux *http.ServeMux)
}

// Void discards every measurement.
var Void Metrics = voidMetrics{}

type voidMetrics struct{}

func (voidMetrics) MeasureSince(string, time.Time)              {}
func (voidMetrics) IncCounter(string)                           {}
func (voidMetrics) UpdateGauge(string, float64)                 {}
func (voidMetrics) MeasureRouteLookup(time.Time)                {}
func (voidMetrics) MeasureFilterRequest(string, time.Time)      {}
func (voidMetrics) MeasureBackend(string, time.Time)            {}
func (voidMetrics) MeasureServe(string, string, int, time.Time) {}
func (voidMetrics) IncRoutingFailures()                         {}
func (voidMetrics) IncErrorsBackend(string)                     {}
func (voidMetrics) SetInvalidRoute(string, string)              {}
func (voidMetrics) ResetInvalidRoutes()                         {}
func (voidMetrics) RegisterHandler(string, *http.ServeMux)      {}

func measuredMethod(m string) string {
	switch m {
	case "OPTIONS",
		"GET",
		"HEAD",
		"POST",
		"PUT",
		"PATCH",
		"DELETE",
		"TRACE",
		"CONNECT":
		return m
	default:
		return "_unknownmethod_"
	}
}
