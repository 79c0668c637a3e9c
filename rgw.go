package rgw

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rgwgateway/rgw/dataclients/controlplane"
	"github.com/rgwgateway/rgw/dataclients/routefile"
	"github.com/rgwgateway/rgw/dataclients/routestring"
	"github.com/rgwgateway/rgw/environment"
	"github.com/rgwgateway/rgw/filters/builtin"
	"github.com/rgwgateway/rgw/logging"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/plugins"
	"github.com/rgwgateway/rgw/proxy"
	"github.com/rgwgateway/rgw/routing"
	"github.com/rgwgateway/rgw/tracing"
)

const (
	DefaultAddress         = ":9090"
	DefaultSupportListener = ":9911"

	defaultReadHeaderTimeout = time.Minute
	defaultIdleTimeout       = time.Minute
	defaultTimeoutBackend    = 60 * time.Second
	defaultKeepaliveBackend  = 30 * time.Second
	defaultIdleConnsPerHost  = 64

	defaultRedisDialTimeout  = 25 * time.Millisecond
	defaultRedisReadTimeout  = 25 * time.Millisecond
	defaultRedisWriteTimeout = 25 * time.Millisecond
	defaultRedisPoolTimeout  = 25 * time.Millisecond
)

// Options to start the gateway.
type Options struct {

	// Network address that the gateway listens on.
	Address string

	// Network address of the support endpoints, /metrics and
	// /health. An empty value disables the support listener.
	SupportListener string

	// ReadHeaderTimeout and IdleTimeout of the server connections.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// WaitForShutdown is the delay between receiving the shutdown
	// signal and closing the listeners.
	WaitForShutdown time.Duration

	// Base URL of the control plane. The route definitions are
	// loaded from <ControlPlaneURL>/routes.
	ControlPlaneURL string

	// Bearer token for the control plane, or the file containing it.
	ControlPlaneToken     string
	ControlPlaneTokenFile string

	// Files containing route definitions, as YAML or JSON.
	RoutesFiles []string

	// Route definitions passed as YAML or JSON strings.
	InlineRoutes []string

	// When positive, the routes are reloaded periodically, in addition
	// to the control plane notifications.
	PollInterval time.Duration

	// Retry settings of the route loading.
	RouteRetryInterval time.Duration
	RouteMaxRetries    uint

	// Minimum interval between two route updates requested by the
	// control plane notifications. Zero means no limit.
	NotificationMinInterval time.Duration

	// Directory where the plugins are installed.
	PluginHome string

	// Base URL of the plugin archives.
	PluginRepository string

	// Timeout of a plugin archive download.
	PluginDownloadTimeout time.Duration

	// Retry settings of the plugin downloads.
	PluginRetryInterval time.Duration
	PluginMaxRetries    uint

	// CustomPlugins are bundled in addition to the built-in ones, and
	// take precedence over them.
	CustomPlugins []builtin.Plugin

	// Environment variables per organization. Used only when
	// EnvironmentURL is not set.
	Environment environment.Static

	// Base URL of the environment service.
	EnvironmentURL string

	// Cache settings of the environment service lookups.
	EnvironmentTTL       time.Duration
	EnvironmentCacheSize int

	// Skip the verification of the upstream TLS certificates.
	Insecure bool

	// Connection settings of the upstream requests.
	TimeoutBackend   time.Duration
	KeepaliveBackend time.Duration
	IdleConnsPerHost int

	// Redis servers storing the rate limiter buckets shared by the
	// gateway instances. A single address is used as a standalone
	// server, more addresses as a cluster.
	RedisAddrs    []string
	RedisPassword string

	// Timeouts of the Redis connections.
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration
	RedisPoolTimeout  time.Duration

	// Metrics settings.
	MetricsPrefix        string
	EnableRuntimeMetrics bool
	HistogramBuckets     []float64

	// Exporter of the OpenTelemetry spans: "none", "stdout", "debug"
	// or "otlp". Ignored when TracerProvider is set.
	TracesExporter string

	// TracerProvider creates the spans of the proxy. When not set, the
	// global provider is used, initialized by TracesExporter.
	TracerProvider trace.TracerProvider

	// Output file for the application log. When not set, /dev/stderr
	// is used.
	ApplicationLog            string
	ApplicationLogLevel       string
	ApplicationLogPrefix      string
	ApplicationLogJSONEnabled bool

	// Output file for the access log. When not set, /dev/stderr is
	// used.
	AccessLog            string
	AccessLogDisabled    bool
	AccessLogJSONEnabled bool
}

// App is a configured gateway. It is started with Run.
type App struct {
	options  Options
	table    *routing.Table
	updater  *routing.Updater
	registry *plugins.Registry
	proxy    *proxy.Proxy
	metrics  *metrics.Prometheus

	transport       *http.Transport
	redis           redis.UniversalClient
	server          *http.Server
	support         *http.Server
	logFiles        []io.Closer
	tracingShutdown func(context.Context) error
}

func (o *Options) setDefaults() {
	if o.Address == "" {
		o.Address = DefaultAddress
	}

	if o.ReadHeaderTimeout <= 0 {
		o.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}

	if o.TimeoutBackend <= 0 {
		o.TimeoutBackend = defaultTimeoutBackend
	}

	if o.KeepaliveBackend <= 0 {
		o.KeepaliveBackend = defaultKeepaliveBackend
	}

	if o.IdleConnsPerHost <= 0 {
		o.IdleConnsPerHost = defaultIdleConnsPerHost
	}

	if o.RedisDialTimeout <= 0 {
		o.RedisDialTimeout = defaultRedisDialTimeout
	}

	if o.RedisReadTimeout <= 0 {
		o.RedisReadTimeout = defaultRedisReadTimeout
	}

	if o.RedisWriteTimeout <= 0 {
		o.RedisWriteTimeout = defaultRedisWriteTimeout
	}

	if o.RedisPoolTimeout <= 0 {
		o.RedisPoolTimeout = defaultRedisPoolTimeout
	}
}

func openLog(name string) (*os.File, error) {
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (a *App) initLog(o Options) error {
	lo := logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	}

	if o.ApplicationLog != "" {
		f, err := openLog(o.ApplicationLog)
		if err != nil {
			return fmt.Errorf("failed to open the application log: %w", err)
		}

		a.logFiles = append(a.logFiles, f)
		lo.ApplicationLogOutput = f
	}

	if o.AccessLog != "" && !o.AccessLogDisabled {
		f, err := openLog(o.AccessLog)
		if err != nil {
			return fmt.Errorf("failed to open the access log: %w", err)
		}

		a.logFiles = append(a.logFiles, f)
		lo.AccessLogOutput = f
	}

	return logging.Init(lo)
}

func createDataClients(o Options) ([]routing.DataClient, error) {
	var clients []routing.DataClient

	for _, f := range o.RoutesFiles {
		c, err := routefile.New(f)
		if err != nil {
			return nil, fmt.Errorf("error while opening the routes file %s: %w", f, err)
		}

		clients = append(clients, c)
	}

	if len(o.InlineRoutes) > 0 {
		c, err := routestring.NewList(o.InlineRoutes)
		if err != nil {
			return nil, fmt.Errorf("error while parsing the inline routes: %w", err)
		}

		clients = append(clients, c)
	}

	// the control plane wins for the routes defined in more places
	if o.ControlPlaneURL != "" {
		c, err := controlplane.New(controlplane.Options{
			URL:       o.ControlPlaneURL,
			Token:     o.ControlPlaneToken,
			TokenFile: o.ControlPlaneTokenFile,
		})
		if err != nil {
			return nil, err
		}

		clients = append(clients, c)
	}

	return clients, nil
}

func createEnvironment(o Options) (environment.Provider, error) {
	if o.EnvironmentURL == "" {
		if len(o.Environment) == 0 {
			return environment.Void{}, nil
		}

		return o.Environment, nil
	}

	if len(o.Environment) > 0 {
		log.Warn("environment service is configured, ignoring the static environment")
	}

	return environment.NewHTTP(environment.HTTPOptions{
		URL:       o.EnvironmentURL,
		TTL:       o.EnvironmentTTL,
		CacheSize: o.EnvironmentCacheSize,
	})
}

func createTransport(o Options) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout:   o.TimeoutBackend,
		KeepAlive: o.KeepaliveBackend,
	}).DialContext
	tr.MaxIdleConnsPerHost = o.IdleConnsPerHost
	if o.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return tr
}

func createRedisClient(o Options) redis.UniversalClient {
	if len(o.RedisAddrs) == 0 {
		return nil
	}

	log.Infof("shared rate limiter buckets stored in Redis at %v", o.RedisAddrs)
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        o.RedisAddrs,
		Password:     o.RedisPassword,
		DialTimeout:  o.RedisDialTimeout,
		ReadTimeout:  o.RedisReadTimeout,
		WriteTimeout: o.RedisWriteTimeout,
		PoolTimeout:  o.RedisPoolTimeout,
	})
}

// New creates a gateway from the options. It initializes logging, but
// it doesn't start listening or loading the routes.
func New(o Options) (*App, error) {
	o.setDefaults()
	a := &App{options: o}
	if err := a.initLog(o); err != nil {
		a.closeLogs()
		return nil, err
	}

	dataClients, err := createDataClients(o)
	if err != nil {
		a.closeLogs()
		return nil, err
	}

	if len(dataClients) == 0 {
		log.Warn("no route source specified")
	}

	env, err := createEnvironment(o)
	if err != nil {
		a.closeLogs()
		return nil, err
	}

	a.tracingShutdown = func(context.Context) error { return nil }
	if o.TracerProvider == nil {
		a.tracingShutdown, err = tracing.Init(context.Background(), tracing.Options{Exporter: o.TracesExporter})
		if err != nil {
			a.closeLogs()
			return nil, err
		}
	}

	a.metrics = metrics.NewPrometheus(metrics.Options{
		Prefix:               o.MetricsPrefix,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		HistogramBuckets:     o.HistogramBuckets,
	})

	var pluginClient *http.Client
	if o.PluginDownloadTimeout > 0 {
		pluginClient = &http.Client{Timeout: o.PluginDownloadTimeout}
	}

	a.registry = plugins.NewRegistry(plugins.Options{
		PluginHome:    o.PluginHome,
		Repository:    o.PluginRepository,
		Client:        pluginClient,
		RetryInterval: o.PluginRetryInterval,
		MaxRetries:    o.PluginMaxRetries,
		Metrics:       a.metrics,
	})

	a.transport = createTransport(o)
	a.redis = createRedisClient(o)
	builtin.Register(a.registry, builtin.Options{
		Transport:      a.transport,
		Redis:          a.redis,
		Metrics:        a.metrics,
		TracerProvider: o.TracerProvider,
	})
	for _, p := range o.CustomPlugins {
		a.registry.Register(p.Name, p.Version, p.New)
	}

	a.table = routing.NewTable()
	a.updater = routing.NewUpdater(routing.UpdaterOptions{
		DataClients:        dataClients,
		Table:              a.table,
		Builder:            routing.NewBuilder(routing.BuilderOptions{Plugins: a.registry, Metrics: a.metrics}),
		PollInterval:       o.PollInterval,
		MinTriggerInterval: o.NotificationMinInterval,
		RetryInterval:      o.RouteRetryInterval,
		MaxRetries:         o.RouteMaxRetries,
		Metrics:            a.metrics,
	})

	a.proxy = proxy.New(proxy.Params{
		Table:             a.table,
		Environment:       env,
		Notifier:          a.updater,
		Metrics:           a.metrics,
		TracerProvider:    o.TracerProvider,
		AccessLogDisabled: o.AccessLogDisabled,
	})

	a.server = &http.Server{
		Addr:              o.Address,
		Handler:           a.proxy,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
		IdleTimeout:       o.IdleTimeout,
		ErrorLog:          newServerErrorLog(),
	}

	if o.SupportListener != "" {
		a.support = &http.Server{
			Addr:              o.SupportListener,
			Handler:           a.supportHandler(),
			ReadHeaderTimeout: o.ReadHeaderTimeout,
		}
	}

	return a, nil
}

// Handler returns the HTTP handler of the gateway.
func (a *App) Handler() http.Handler { return a.proxy }

// Table returns the route table of the gateway.
func (a *App) Table() *routing.Table { return a.table }

// Registry returns the plugin registry of the gateway.
func (a *App) Registry() *plugins.Registry { return a.registry }

func (a *App) supportHandler() http.Handler {
	mux := http.NewServeMux()
	a.metrics.RegisterHandler("/metrics", mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-a.updater.FirstLoad():
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "routes not loaded", http.StatusServiceUnavailable)
		}
	})

	return mux
}

func (a *App) closeLogs() {
	for _, f := range a.logFiles {
		f.Close()
	}
}

func serve(s *http.Server, l net.Listener) error {
	if err := s.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (a *App) shutdown() {
	log.Infof("shutting down the server in %s...", a.options.WaitForShutdown)
	time.Sleep(a.options.WaitForShutdown)

	ctx, cancel := context.WithTimeout(context.Background(), a.options.IdleTimeout)
	defer cancel()

	for _, s := range []*http.Server{a.server, a.support} {
		if s == nil {
			continue
		}

		if err := s.Shutdown(ctx); err != nil {
			log.Errorf("unable to shut down the server %s: %v", s.Addr, err)
		}
	}

	a.transport.CloseIdleConnections()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Errorf("unable to close the Redis client: %v", err)
		}
	}

	if err := a.tracingShutdown(ctx); err != nil {
		log.Errorf("unable to flush the spans: %v", err)
	}

	log.Info("server shut down")
}

// Run starts listening, and loading the routes. It blocks until the
// context is canceled or a listener fails, and returns after the
// servers were shut down.
func (a *App) Run(ctx context.Context) error {
	defer a.closeLogs()

	l, err := net.Listen("tcp", a.options.Address)
	if err != nil {
		return err
	}

	var sl net.Listener
	if a.support != nil {
		sl, err = net.Listen("tcp", a.options.SupportListener)
		if err != nil {
			l.Close()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.updater.Run(ctx) })

	log.Infof("listening on %v", l.Addr())
	g.Go(func() error { return serve(a.server, l) })

	if sl != nil {
		log.Infof("support listener on %v", sl.Addr())
		g.Go(func() error { return serve(a.support, sl) })
	}

	g.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// Run starts a gateway with the options, and runs it until it receives
// SIGTERM or SIGINT.
func Run(o Options) error {
	a, err := New(o)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	return a.Run(ctx)
}
