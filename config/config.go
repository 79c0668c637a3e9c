/*
Package config parses the command line flags and the optional YAML
configuration file of the gateway.

Every flag has the same key in the configuration file. The flags take
precedence over the file:

	rgw -config-file=rgw.yaml -address=:8080

The control plane token can be provided also in the RGW_CONTROL_PLANE_TOKEN
environment variable.
*/
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/rgwgateway/rgw"
	"github.com/rgwgateway/rgw/environment"
	"github.com/rgwgateway/rgw/tracing"
)

const (
	controlPlaneTokenEnv = "RGW_CONTROL_PLANE_TOKEN"

	defaultApplicationLogLevel  = "INFO"
	defaultApplicationLogPrefix = "[APP]"
	defaultMetricsPrefix        = "rgw."
	defaultPluginHome           = "./plugins"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	PrintVersion bool `yaml:"version"`

	// server:
	Address                 string        `yaml:"address"`
	SupportListener         string        `yaml:"support-listener"`
	ReadHeaderTimeoutServer time.Duration `yaml:"read-header-timeout-server"`
	IdleTimeoutServer       time.Duration `yaml:"idle-timeout-server"`
	WaitForShutdown         time.Duration `yaml:"wait-for-shutdown"`

	// routes:
	ControlPlaneURL       string        `yaml:"control-plane-url"`
	ControlPlaneToken     string        `yaml:"control-plane-token"`
	ControlPlaneTokenFile string        `yaml:"control-plane-token-file"`
	RoutesFiles           multiFlag     `yaml:"routes-file"`
	InlineRoutes          multiFlag     `yaml:"inline-routes"`
	PollInterval          time.Duration `yaml:"poll-interval"`
	RouteRetryInterval    time.Duration `yaml:"route-retry-interval"`
	RouteMaxRetries       uint          `yaml:"route-max-retries"`

	NotificationMinInterval time.Duration `yaml:"notification-min-interval"`

	// plugins:
	PluginHome            string        `yaml:"plugin-home"`
	PluginRepository      string        `yaml:"plugin-repository"`
	PluginDownloadTimeout time.Duration `yaml:"plugin-download-timeout"`
	PluginRetryInterval   time.Duration `yaml:"plugin-retry-interval"`
	PluginMaxRetries      uint          `yaml:"plugin-max-retries"`

	// environment:
	Environment          *environment.Static `yaml:"environment"`
	EnvironmentFile      string              `yaml:"environment-file"`
	EnvironmentURL       string              `yaml:"environment-url"`
	EnvironmentTTL       time.Duration       `yaml:"environment-ttl"`
	EnvironmentCacheSize int                 `yaml:"environment-cache-size"`

	// upstreams:
	Insecure         bool          `yaml:"insecure"`
	TimeoutBackend   time.Duration `yaml:"timeout-backend"`
	KeepaliveBackend time.Duration `yaml:"keepalive-backend"`
	IdleConnsPerHost int           `yaml:"idle-conns-num"`

	// redis:
	RedisAddrs        *listFlag     `yaml:"redis-addrs"`
	RedisPassword     string        `yaml:"redis-password"`
	RedisDialTimeout  time.Duration `yaml:"redis-dial-timeout"`
	RedisReadTimeout  time.Duration `yaml:"redis-read-timeout"`
	RedisWriteTimeout time.Duration `yaml:"redis-write-timeout"`
	RedisPoolTimeout  time.Duration `yaml:"redis-pool-timeout"`

	// metrics:
	MetricsPrefix          string    `yaml:"metrics-prefix"`
	RuntimeMetrics         bool      `yaml:"runtime-metrics"`
	HistogramBucketsString *listFlag `yaml:"histogram-metric-buckets"`
	HistogramBuckets       []float64 `yaml:"-"`

	// tracing:
	OtelTracesExporter string `yaml:"otel-traces-exporter"`

	// logging:
	ApplicationLog            string    `yaml:"application-log"`
	ApplicationLogLevel       log.Level `yaml:"-"`
	ApplicationLogLevelString string    `yaml:"application-log-level"`
	ApplicationLogPrefix      string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool      `yaml:"application-log-json-enabled"`
	AccessLog                 string    `yaml:"access-log"`
	AccessLogDisabled         bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled      bool      `yaml:"access-log-json-enabled"`

	environment environment.Static
}

func NewConfig() *Config {
	cfg := new(Config)
	cfg.HistogramBucketsString = commaListFlag()
	cfg.RedisAddrs = commaListFlag()

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")
	flag.BoolVar(&cfg.PrintVersion, "version", false, "print the gateway version")

	// server:
	flag.StringVar(&cfg.Address, "address", rgw.DefaultAddress, "network address that the gateway should listen on")
	flag.StringVar(&cfg.SupportListener, "support-listener", rgw.DefaultSupportListener, "network address used for exposing the /metrics and /health endpoints. An empty value disables the support endpoints.")
	flag.DurationVar(&cfg.ReadHeaderTimeoutServer, "read-header-timeout-server", time.Minute, "set ReadHeaderTimeout for http server connections")
	flag.DurationVar(&cfg.IdleTimeoutServer, "idle-timeout-server", time.Minute, "set IdleTimeout for http server connections")
	flag.DurationVar(&cfg.WaitForShutdown, "wait-for-shutdown", 0, "time to wait after receiving SIGTERM before closing the listeners")

	// routes:
	flag.StringVar(&cfg.ControlPlaneURL, "control-plane-url", "", "base URL of the control plane providing the route definitions at /routes")
	flag.StringVar(&cfg.ControlPlaneToken, "control-plane-token", "", "bearer token for the control plane requests")
	flag.StringVar(&cfg.ControlPlaneTokenFile, "control-plane-token-file", "", "file containing the bearer token for the control plane requests, read on every request")
	flag.Var(&cfg.RoutesFiles, "routes-file", "file containing route definitions in YAML or JSON, can be repeated")
	flag.Var(&cfg.InlineRoutes, "inline-routes", "route definitions in YAML or JSON, can be repeated")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 0, "interval of reloading the routes, in addition to the control plane notifications. Zero disables polling.")
	flag.DurationVar(&cfg.RouteRetryInterval, "route-retry-interval", time.Second, "initial interval of retrying failed route loads")
	flag.UintVar(&cfg.RouteMaxRetries, "route-max-retries", 5, "number of attempts to load the routes from a source during one update")
	flag.DurationVar(&cfg.NotificationMinInterval, "notification-min-interval", 0, "minimum interval between the route updates requested by the control plane notifications. Zero means no limit.")

	// plugins:
	flag.StringVar(&cfg.PluginHome, "plugin-home", defaultPluginHome, "directory where the plugins are installed")
	flag.StringVar(&cfg.PluginRepository, "plugin-repository", "", "base URL of the plugin archives, <repository>/<name>/<version>.tar.gz")
	flag.DurationVar(&cfg.PluginDownloadTimeout, "plugin-download-timeout", time.Minute, "timeout of downloading a plugin archive")
	flag.DurationVar(&cfg.PluginRetryInterval, "plugin-retry-interval", time.Second, "initial interval of retrying failed plugin downloads")
	flag.UintVar(&cfg.PluginMaxRetries, "plugin-max-retries", 3, "number of attempts to download a plugin archive")

	// environment:
	flag.Var(newYamlFlag(&cfg.Environment), "environment", "environment variables per organization in YAML format, use flow-style for convenience")
	flag.StringVar(&cfg.EnvironmentFile, "environment-file", "", "YAML file with environment variables per organization, the -environment flag takes precedence")
	flag.StringVar(&cfg.EnvironmentURL, "environment-url", "", "base URL of the environment service, providing the variables at /env/<orgId>")
	flag.DurationVar(&cfg.EnvironmentTTL, "environment-ttl", environment.DefaultTTL, "time to cache the environment variables received from the environment service")
	flag.IntVar(&cfg.EnvironmentCacheSize, "environment-cache-size", environment.DefaultCacheSize, "maximum number of organizations cached from the environment service")

	// upstreams:
	flag.BoolVar(&cfg.Insecure, "insecure", false, "flag indicating to ignore the verification of the TLS certificates of the upstream services")
	flag.DurationVar(&cfg.TimeoutBackend, "timeout-backend", 60*time.Second, "sets the TCP client connection timeout for upstream connections")
	flag.DurationVar(&cfg.KeepaliveBackend, "keepalive-backend", 30*time.Second, "sets the keepalive for upstream connections")
	flag.IntVar(&cfg.IdleConnsPerHost, "idle-conns-num", 64, "maximum idle connections per upstream host")

	// redis:
	flag.Var(cfg.RedisAddrs, "redis-addrs", "comma separated Redis addresses storing the shared rate limiter buckets, more than one address is used as a cluster")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "password of the Redis servers")
	flag.DurationVar(&cfg.RedisDialTimeout, "redis-dial-timeout", 25*time.Millisecond, "timeout of connecting to Redis")
	flag.DurationVar(&cfg.RedisReadTimeout, "redis-read-timeout", 25*time.Millisecond, "timeout of the Redis socket reads")
	flag.DurationVar(&cfg.RedisWriteTimeout, "redis-write-timeout", 25*time.Millisecond, "timeout of the Redis socket writes")
	flag.DurationVar(&cfg.RedisPoolTimeout, "redis-pool-timeout", 25*time.Millisecond, "timeout of getting a Redis connection from the pool")

	// metrics:
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", defaultMetricsPrefix, "allows setting a custom prefix for the metrics")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", true, "enables reporting of the Go runtime and process statistics")
	flag.Var(cfg.HistogramBucketsString, "histogram-metric-buckets", "use custom buckets for the histogram metrics, comma separated seconds")

	// tracing:
	flag.StringVar(&cfg.OtelTracesExporter, "otel-traces-exporter", "none", "exporter of the OpenTelemetry spans, possible values: none, stdout, debug, otlp. The otlp exporter is configured by the OTEL_EXPORTER_OTLP_* environment variables")

	// logging:
	flag.StringVar(&cfg.ApplicationLog, "application-log", "", "output file for the application log. When not set, /dev/stderr is used")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", defaultApplicationLogLevel, "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", defaultApplicationLogPrefix, "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.StringVar(&cfg.AccessLog, "access-log", "", "output file for the access log, When not set, /dev/stderr is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "when this flag is set, log in JSON format is used")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	if _, err := log.ParseLevel(c.ApplicationLogLevelString); err != nil {
		return err
	}

	if _, err := parseHistogramBuckets(c.HistogramBucketsString); err != nil {
		return err
	}

	if c.EnvironmentTTL < 0 {
		return fmt.Errorf("invalid environment-ttl: %v", c.EnvironmentTTL)
	}

	switch c.OtelTracesExporter {
	case tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterDebug, tracing.ExporterOTLP:
	default:
		return fmt.Errorf("invalid otel-traces-exporter: %q", c.OtelTracesExporter)
	}

	return nil
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		// the flags set on the command line take precedence
		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.HistogramBuckets, _ = parseHistogramBuckets(c.HistogramBucketsString)

	if err := c.loadEnvironment(); err != nil {
		return err
	}

	c.parseEnv()
	return nil
}

func (c *Config) loadEnvironment() error {
	var env environment.Static
	if c.EnvironmentFile != "" {
		b, err := os.ReadFile(c.EnvironmentFile)
		if err != nil {
			return fmt.Errorf("invalid environment file: %w", err)
		}

		if err := yaml.Unmarshal(b, &env); err != nil {
			return fmt.Errorf("invalid environment file %s: %w", c.EnvironmentFile, err)
		}
	}

	if c.Environment != nil {
		env = env.Merge(*c.Environment)
	}

	c.environment = env
	return nil
}

func (c *Config) parseEnv() {
	// the token from the environment is used only when not set earlier
	if c.ControlPlaneToken == "" {
		c.ControlPlaneToken = os.Getenv(controlPlaneTokenEnv)
	}
}

func parseHistogramBuckets(lf *listFlag) ([]float64, error) {
	if lf == nil || len(lf.values) == 0 {
		return nil, nil
	}

	var (
		buckets []float64
		last    float64
	)

	for i, v := range lf.values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid histogram bucket %q: %w", v, err)
		}

		if i > 0 && f <= last {
			return nil, fmt.Errorf("histogram buckets must be increasing: %v", lf.values)
		}

		buckets = append(buckets, f)
		last = f
	}

	return buckets, nil
}

func (c *Config) ToOptions() rgw.Options {
	return rgw.Options{
		Address:               c.Address,
		SupportListener:       c.SupportListener,
		ReadHeaderTimeout:     c.ReadHeaderTimeoutServer,
		IdleTimeout:           c.IdleTimeoutServer,
		WaitForShutdown:       c.WaitForShutdown,
		ControlPlaneURL:       c.ControlPlaneURL,
		ControlPlaneToken:     c.ControlPlaneToken,
		ControlPlaneTokenFile: c.ControlPlaneTokenFile,
		RoutesFiles:           c.RoutesFiles,
		InlineRoutes:          c.InlineRoutes,
		PollInterval:          c.PollInterval,
		RouteRetryInterval:    c.RouteRetryInterval,
		RouteMaxRetries:       c.RouteMaxRetries,
		PluginHome:            c.PluginHome,
		PluginRepository:      c.PluginRepository,
		PluginDownloadTimeout: c.PluginDownloadTimeout,
		PluginRetryInterval:   c.PluginRetryInterval,
		PluginMaxRetries:      c.PluginMaxRetries,
		Environment:           c.environment,
		EnvironmentURL:        c.EnvironmentURL,
		EnvironmentTTL:        c.EnvironmentTTL,
		EnvironmentCacheSize:  c.EnvironmentCacheSize,
		Insecure:              c.Insecure,
		TimeoutBackend:        c.TimeoutBackend,
		KeepaliveBackend:      c.KeepaliveBackend,
		IdleConnsPerHost:      c.IdleConnsPerHost,
		MetricsPrefix:         c.MetricsPrefix,
		EnableRuntimeMetrics:  c.RuntimeMetrics,
		HistogramBuckets:      c.HistogramBuckets,

		NotificationMinInterval: c.NotificationMinInterval,

		RedisAddrs:        c.RedisAddrs.Values(),
		RedisPassword:     c.RedisPassword,
		RedisDialTimeout:  c.RedisDialTimeout,
		RedisReadTimeout:  c.RedisReadTimeout,
		RedisWriteTimeout: c.RedisWriteTimeout,
		RedisPoolTimeout:  c.RedisPoolTimeout,

		TracesExporter: c.OtelTracesExporter,

		ApplicationLog:            c.ApplicationLog,
		ApplicationLogLevel:       c.ApplicationLogLevel.String(),
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLog:                 c.AccessLog,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,
	}
}
