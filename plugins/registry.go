package plugins

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/metrics"
)

const (
	defaultRetryInterval = time.Second
	defaultMaxRetries    = 3
	defaultTimeout       = time.Minute

	KeyInstalled = "plugins.installed"
	KeyLoaded    = "plugins.loaded"
	KeyFailed    = "plugins.failed"
)

// Options of a registry.
type Options struct {
	// PluginHome is the directory where the plugins are installed.
	PluginHome string

	// Repository is the base URL of the plugin archives. When empty,
	// the plugins that are not installed fail to load.
	Repository string

	// Client downloads the archives. Defaults to a client with one
	// minute timeout.
	Client *http.Client

	// RetryInterval is the initial interval of the exponential backoff
	// when a download fails. Defaults to one second.
	RetryInterval time.Duration

	// MaxRetries is the number of download attempts. Defaults to 3.
	MaxRetries uint

	// Open opens the module files. Defaults to plugin.Open.
	Open OpenFunc

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics
}

type key struct {
	name    string
	version string
}

func (k key) String() string { return k.name + "@" + k.version }

// Module is a resolved plugin.
type Module struct {
	Name    string
	Version string

	// Dir is the install directory, empty for bundled modules.
	Dir string

	newInstance func() filters.Configurable
}

// Bundled tells whether the module is compiled into the gateway.
func (m *Module) Bundled() bool { return m.Dir == "" }

// New creates an unconfigured instance.
func (m *Module) New() filters.Configurable { return m.newInstance() }

// Registry resolves plugins and creates their instances. It is safe for
// concurrent use.
type Registry struct {
	options Options

	mu      sync.RWMutex
	bundled map[key]func() filters.Configurable
	modules map[key]*Module
	group   singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(o Options) *Registry {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: defaultTimeout}
	}

	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}

	if o.Open == nil {
		o.Open = openPlugin
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	return &Registry{
		options: o,
		bundled: make(map[key]func() filters.Configurable),
		modules: make(map[key]*Module),
	}
}

// Register adds a bundled plugin. Registering the same name and version
// again replaces the previous one.
func (r *Registry) Register(name, version string, newInstance func() filters.Configurable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{name, version}
	r.bundled[k] = newInstance
	delete(r.modules, k)
}

func (r *Registry) cached(k key) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.modules[k]; ok {
		return m, true
	}

	if c, ok := r.bundled[k]; ok {
		return &Module{Name: k.name, Version: k.version, newInstance: c}, true
	}

	return nil, false
}

func (r *Registry) store(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[key{m.Name, m.Version}] = m
}

// Resolve returns a plugin module, installing and opening it when
// necessary. Concurrent calls for the same plugin share the same
// installation. Canceling ctx returns early, but it doesn't abort the
// installation shared with other callers.
func (r *Registry) Resolve(ctx context.Context, name, version string) (*Module, error) {
	k := key{name, version}
	if m, ok := r.cached(k); ok {
		return m, nil
	}

	if !validComponent(name) || !validComponent(version) {
		return nil, &LoadError{Name: name, Version: version, Err: errInvalidName}
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(k.String(), func() (interface{}, error) {
		if m, ok := r.cached(k); ok {
			return m, nil
		}

		m, err := r.load(loadCtx, k)
		if err != nil {
			r.options.Metrics.IncCounter(KeyFailed)
			return nil, &LoadError{Name: name, Version: version, Err: err}
		}

		r.store(m)
		r.options.Metrics.IncCounter(KeyLoaded)
		log.Infof("plugin %s loaded from %s", k, m.Dir)
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*Module), nil
	case <-ctx.Done():
		return nil, &LoadError{Name: name, Version: version, Err: ctx.Err()}
	}
}

func (r *Registry) load(ctx context.Context, k key) (*Module, error) {
	dir := filepath.Join(r.options.PluginHome, k.name, k.version)
	exists, err := dirExists(dir)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := r.install(ctx, k.name, k.version, dir); err != nil {
			return nil, err
		}
	}

	c, err := r.loadDir(dir)
	if err != nil {
		return nil, err
	}

	return &Module{Name: k.name, Version: k.version, Dir: dir, newInstance: c}, nil
}

func (r *Registry) instantiate(ctx context.Context, name, version string) (filters.Configurable, error) {
	m, err := r.Resolve(ctx, name, version)
	if err != nil {
		return nil, err
	}

	inst := m.New()
	if inst == nil {
		return nil, &LoadError{Name: name, Version: version, Err: errNoInstance}
	}

	return inst, nil
}

func configure(name, version string, c filters.Configurable, config []byte) error {
	if err := c.Configure(config); err != nil {
		return &ConfigError{Name: name, Version: version, Err: err}
	}

	return nil
}

// NewFilter creates and configures a filter instance.
func (r *Registry) NewFilter(ctx context.Context, name, version string, config []byte) (filters.Filter, error) {
	inst, err := r.instantiate(ctx, name, version)
	if err != nil {
		return nil, err
	}

	f, ok := inst.(filters.Filter)
	if !ok {
		return nil, &LoadError{Name: name, Version: version, Err: errNotFilter}
	}

	if err := configure(name, version, f, config); err != nil {
		return nil, err
	}

	return f, nil
}

// NewPredicate creates and configures a predicate instance.
func (r *Registry) NewPredicate(ctx context.Context, name, version string, config []byte) (filters.Predicate, error) {
	inst, err := r.instantiate(ctx, name, version)
	if err != nil {
		return nil, err
	}

	p, ok := inst.(filters.Predicate)
	if !ok {
		return nil, &LoadError{Name: name, Version: version, Err: errNotPredicate}
	}

	if err := configure(name, version, p, config); err != nil {
		return nil, err
	}

	return p, nil
}
