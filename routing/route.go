package routing

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/pathmatch"
)

// PluginRef references a plugin instance in a route definition.
type PluginRef struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Config  json.RawMessage `json:"config,omitempty"`
}

func (p PluginRef) String() string {
	return p.Name + "@" + p.Version
}

// Definition is the declarative form of a route, as stored by the control
// plane.
type Definition struct {
	Id            string          `json:"id"`
	Methods       []string        `json:"methods,omitempty"`
	Path          string          `json:"path"`
	OrgId         string          `json:"orgId,omitempty"`
	Predicate     *PluginRef      `json:"predicate,omitempty"`
	Filters       []PluginRef     `json:"filters,omitempty"`
	AccessLogConf json.RawMessage `json:"accessLogConf,omitempty"`
}

// Route is a live route, with its plugin instances created and
// configured.
type Route struct {
	// Id identifies the route in the table.
	Id string

	// Methods accepted by the route. Empty accepts every method.
	Methods []string

	// Path pattern, always stored normalized.
	Path string

	// Predicate, when set, must accept the request for the route to
	// match.
	Predicate filters.Predicate

	// Filters executed in order for the matched requests.
	Filters []filters.Filter

	// AccessLogConf is passed through to the access log.
	AccessLogConf json.RawMessage

	// OrgId is the key used to look up the environment variables of
	// the route.
	OrgId string

	// Definition that the route was built from, if any.
	Definition *Definition
}

// AllowsMethod tells whether the route accepts the given request method.
func (r *Route) AllowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}

	return slices.ContainsFunc(r.Methods, func(m string) bool {
		return strings.EqualFold(m, method)
	})
}

// Accepts tells whether the route accepts the request in ctx, checking the
// methods and the predicate.
func (r *Route) Accepts(ctx filters.FilterContext) bool {
	if !r.AllowsMethod(ctx.Request().Method) {
		return false
	}

	return r.Predicate == nil || r.Predicate.Test(ctx)
}

// Match matches a normalized request path against the route path.
func (r *Route) Match(path string) (map[string]string, bool) {
	return pathmatch.MatchNormalized(r.Path, path)
}

// NewChain returns the filter chain of the route.
func (r *Route) NewChain() filters.Chain {
	return filters.NewChain(r.Filters)
}

var knownMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodConnect,
	http.MethodOptions,
	http.MethodTrace,
}
