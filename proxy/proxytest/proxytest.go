// Package proxytest starts a gateway with the bundled plugins for tests.
package proxytest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/rgwgateway/rgw/environment"
	"github.com/rgwgateway/rgw/filters/builtin"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/plugins"
	"github.com/rgwgateway/rgw/proxy"
	"github.com/rgwgateway/rgw/routing"
	"github.com/rgwgateway/rgw/routing/testdataclient"
)

type TestProxy struct {
	URL      string
	Table    *routing.Table
	Updater  *routing.Updater
	Registry *plugins.Registry

	dc        *testdataclient.Client
	proxy     *proxy.Proxy
	server    *httptest.Server
	transport *http.Transport
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

type TestClient struct {
	*http.Client
}

type Config struct {
	Definitions []*routing.Definition
	Environment environment.Provider
	Metrics     metrics.Metrics

	// Registry, when set, is used instead of a registry with the
	// bundled plugins only.
	Registry *plugins.Registry

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	AccessLogDisabled bool
}

// New starts a gateway serving the route definitions.
func New(defs ...*routing.Definition) *TestProxy {
	return Config{Definitions: defs}.Create()
}

func (c Config) Create() *TestProxy {
	if c.Metrics == nil {
		c.Metrics = metrics.Void
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	registry := c.Registry
	if registry == nil {
		registry = plugins.NewRegistry(plugins.Options{Metrics: c.Metrics})
		builtin.Register(registry, builtin.Options{Transport: transport, Metrics: c.Metrics, TracerProvider: c.TracerProvider})
	}

	table := routing.NewTable()
	dc := testdataclient.New(c.Definitions...)
	updater := routing.NewUpdater(routing.UpdaterOptions{
		DataClients: []routing.DataClient{dc},
		Table:       table,
		Builder:     routing.NewBuilder(routing.BuilderOptions{Plugins: registry, Metrics: c.Metrics}),
		MaxRetries:  1,
		Metrics:     c.Metrics,
	})

	pr := proxy.New(proxy.Params{
		Table:             table,
		Environment:       c.Environment,
		Notifier:          updater,
		Metrics:           c.Metrics,
		TracerProvider:    c.TracerProvider,
		AccessLogDisabled: c.AccessLogDisabled,
	})

	ctx, cancel := context.WithCancel(context.Background())
	p := &TestProxy{
		Table:     table,
		Updater:   updater,
		Registry:  registry,
		dc:        dc,
		proxy:     pr,
		server:    httptest.NewServer(pr),
		transport: transport,
		cancel:    cancel,
	}

	p.URL = p.server.URL
	p.done.Add(1)
	go func() {
		defer p.done.Done()
		updater.Run(ctx)
	}()

	<-updater.FirstLoad()
	return p
}

// Update replaces the definitions served to the gateway. They are applied
// on the next update.
func (p *TestProxy) Update(defs ...*routing.Definition) {
	p.dc.Update(defs...)
}

func (p *TestProxy) Client() *TestClient {
	return &TestClient{p.server.Client()}
}

func (p *TestProxy) Close() error {
	p.cancel()
	p.done.Wait()
	p.server.Close()
	p.transport.CloseIdleConnections()
	return nil
}

// GetBody issues a GET to the specified URL, reads and closes response body and
// returns response, response body bytes and error if any.
func (c *TestClient) GetBody(url string) (rsp *http.Response, body []byte, err error) {
	return c.DoBody(http.MethodGet, url, "")
}

// DoBody issues a request, reads and closes the response body and returns
// response, response body bytes and error if any.
func (c *TestClient) DoBody(method, url, requestBody string) (rsp *http.Response, body []byte, err error) {
	var r io.Reader
	if requestBody != "" {
		r = strings.NewReader(requestBody)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return
	}

	rsp, err = c.Do(req)
	if err != nil {
		return
	}
	defer rsp.Body.Close()

	body, err = io.ReadAll(rsp.Body)
	return
}
