package filters

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// State bag keys set by the gateway for every request.
const (
	// RouteIdKey holds the id of the matched route.
	RouteIdKey = "rgw:routeId"

	// FlowIdKey holds the flow id of the request, when set by the
	// flow-id filter.
	FlowIdKey = "rgw:flowId"

	// AuditTagsKey can be used by filters to collect tags for the
	// access log. Its value is a map[string]string.
	AuditTagsKey = "rgw:auditTags"
)

// Configurable is the common interface of plugin instances.
type Configurable interface {

	// Configure receives the raw JSON configuration of the
	// instance. It is called once, before the instance is used.
	// It returns an error when the configuration is malformed or
	// invalid.
	Configure(config []byte) error
}

// Filter instances are the stages of the processing pipeline of a route.
type Filter interface {
	Configurable

	// Filter processes the request represented by the context. To
	// continue with the rest of the pipeline, it calls next.Next
	// at most once. Returning without calling it short-circuits the
	// pipeline.
	//
	// Calling next.Next more than once, or from a different
	// goroutine concurrently with the caller, is undefined.
	Filter(ctx FilterContext, next Chain) error
}

// Predicate instances refine the matching of a route, beyond the path
// and the methods.
type Predicate interface {
	Configurable

	// Test returns true when the request matches.
	Test(ctx FilterContext) bool
}

// FilterContext is the per-request exchange passed through the chain.
// It is owned by the processing of a single request.
type FilterContext interface {

	// The response writer, possibly wrapped by an upstream filter.
	ResponseWriter() http.ResponseWriter

	// Replaces the response writer seen by the downstream filters.
	SetResponseWriter(http.ResponseWriter)

	// The incoming request, possibly replaced by an upstream filter.
	Request() *http.Request

	// Replaces the request seen by the downstream filters.
	SetRequest(*http.Request)

	// The value of a variable bound by the matched path pattern.
	PathParam(string) string

	// All the variables bound by the matched path pattern.
	PathParams() map[string]string

	// Environment variables associated with the route.
	Environment() map[string]string

	// Attributes shared between the filters of the chain.
	StateBag() map[string]interface{}

	// The id of the matched route.
	RouteId() string

	// The context of the request.
	Context() context.Context

	// Logger with request scoped fields.
	Logger() log.FieldLogger
}
