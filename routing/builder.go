package routing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/pathmatch"
)

// PluginFactory creates configured plugin instances. It is implemented by
// the plugin registry.
type PluginFactory interface {
	NewFilter(ctx context.Context, name, version string, config []byte) (filters.Filter, error)
	NewPredicate(ctx context.Context, name, version string, config []byte) (filters.Predicate, error)
}

// BuilderOptions configure a Builder.
type BuilderOptions struct {
	// Plugins creates the filter and predicate instances. Required.
	Plugins PluginFactory

	// Metrics receives the invalid routes. Defaults to metrics.Void.
	Metrics metrics.Metrics
}

// Builder creates live routes from their definitions.
type Builder struct {
	plugins PluginFactory
	metrics metrics.Metrics
}

func NewBuilder(o BuilderOptions) *Builder {
	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	return &Builder{plugins: o.Plugins, metrics: o.Metrics}
}

func pluginError(p PluginRef, err error) error {
	reason := errPluginLoad
	if errors.Is(err, filters.ErrInvalidConfig) {
		reason = errInvalidPluginConfig
	}

	return fmt.Errorf("%w: %s: %w", reason, p, err)
}

func validateMethods(methods []string) ([]string, error) {
	var normalized []string
	for _, m := range methods {
		m = strings.ToUpper(m)
		if !slices.Contains(knownMethods, m) {
			return nil, fmt.Errorf("%w: %q", errInvalidMethod, m)
		}

		normalized = append(normalized, m)
	}

	return normalized, nil
}

// Build creates every plugin instance of a route. When any of them fails
// to load or to configure, it returns an error and no route.
func (b *Builder) Build(ctx context.Context, d *Definition) (*Route, error) {
	if d.Id == "" {
		return nil, errMissingId
	}

	if d.Path != "" && !strings.HasPrefix(d.Path, "/") {
		return nil, fmt.Errorf("%w: %q", errInvalidPath, d.Path)
	}

	methods, err := validateMethods(d.Methods)
	if err != nil {
		return nil, err
	}

	r := &Route{
		Id:            d.Id,
		Methods:       methods,
		Path:          pathmatch.Normalize(d.Path),
		AccessLogConf: d.AccessLogConf,
		OrgId:         d.OrgId,
		Definition:    d,
	}

	if d.Predicate != nil {
		p, err := b.plugins.NewPredicate(ctx, d.Predicate.Name, d.Predicate.Version, d.Predicate.Config)
		if err != nil {
			return nil, pluginError(*d.Predicate, err)
		}

		r.Predicate = p
	}

	for _, ref := range d.Filters {
		f, err := b.plugins.NewFilter(ctx, ref.Name, ref.Version, ref.Config)
		if err != nil {
			return nil, pluginError(ref, err)
		}

		r.Filters = append(r.Filters, f)
	}

	return r, nil
}

// BuildAll builds the routes from a set of definitions, keeping their
// order. The definitions that fail are logged, reported in the metrics,
// and left out.
func (b *Builder) BuildAll(ctx context.Context, defs []*Definition) []*Route {
	return b.Rebuild(ctx, defs, nil)
}

// Rebuild is like BuildAll, but it keeps the routes of the current table
// whose definition didn't change, together with their plugin instances
// and the state held by them. A nil table builds every route.
func (b *Builder) Rebuild(ctx context.Context, defs []*Definition, current *Table) []*Route {
	b.metrics.ResetInvalidRoutes()

	var routes []*Route
	for _, d := range defs {
		if r, ok := unchanged(current, d); ok {
			routes = append(routes, r)
			continue
		}

		r, err := b.Build(ctx, d)
		if err != nil {
			err = HandleValidationError(b.metrics, err, d.Id)
			log.Errorf("failed to build route %q: %v", d.Id, err)
			continue
		}

		routes = append(routes, r)
	}

	return routes
}

func unchanged(current *Table, d *Definition) (*Route, bool) {
	if current == nil {
		return nil, false
	}

	r, ok := current.Get(d.Id)
	if !ok || r.Definition == nil || !reflect.DeepEqual(r.Definition, d) {
		return nil, false
	}

	return r, true
}
