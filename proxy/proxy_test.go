package proxy

import (
	"bytes"
	stdlibcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/environment"
	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/filtertest"
	"github.com/rgwgateway/rgw/logging"
	"github.com/rgwgateway/rgw/metrics/metricstest"
	"github.com/rgwgateway/rgw/routing"
)

type failingEnvironment struct{}

func (failingEnvironment) GetEnvForOrg(stdlibcontext.Context, string) (map[string]string, error) {
	return nil, errors.New("environment service unavailable")
}

type respond struct {
	status int
	body   string
}

func (r respond) Configure([]byte) error { return nil }

func (r respond) Filter(ctx filters.FilterContext, _ filters.Chain) error {
	ctx.ResponseWriter().WriteHeader(r.status)
	_, err := ctx.ResponseWriter().Write([]byte(r.body))
	return err
}

type panicking struct{}

func (panicking) Configure([]byte) error { return nil }

func (panicking) Filter(filters.FilterContext, filters.Chain) error {
	panic("something went wrong")
}

func testProxy(p Params, routes ...*routing.Route) *Proxy {
	if p.Table == nil {
		p.Table = routing.NewTable()
	}

	for _, r := range routes {
		p.Table.Add(r)
	}

	return New(p)
}

func serve(p *Proxy, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNoRoute(t *testing.T) {
	m := &metricstest.MockMetrics{}
	p := testProxy(Params{Metrics: m}, &routing.Route{
		Id:      "r",
		Path:    "/foo",
		Methods: []string{"GET"},
		Filters: []filters.Filter{respond{status: 200}},
	})

	assert.Equal(t, http.StatusNotFound, serve(p, "GET", "/bar").Code)
	assert.Equal(t, http.StatusNotFound, serve(p, "POST", "/foo").Code)
	assert.Equal(t, http.StatusOK, serve(p, "GET", "/foo").Code)

	failures, _ := m.Counter(metricstest.KeyRouteFailures)
	assert.Equal(t, int64(2), failures)

	_, ok := m.Timer(fmt.Sprintf(metricstest.KeyServe, unknownRouteID, "GET", http.StatusNotFound))
	assert.True(t, ok)
	_, ok = m.Timer(fmt.Sprintf(metricstest.KeyServe, "r", "GET", http.StatusOK))
	assert.True(t, ok)
}

func TestPredicateSelectsRoute(t *testing.T) {
	p := testProxy(Params{},
		&routing.Route{
			Id:        "beta",
			Path:      "/api/{id}",
			Predicate: &filtertest.Predicate{Result: false},
			Filters:   []filters.Filter{respond{status: 200, body: "beta"}},
		},
		&routing.Route{
			Id:      "stable",
			Path:    "/api/{id}",
			Filters: []filters.Filter{respond{status: 200, body: "stable"}},
		},
	)

	rec := serve(p, "GET", "/api/42")
	assert.Equal(t, "stable", rec.Body.String())
}

func TestNormalizedPath(t *testing.T) {
	p := testProxy(Params{}, &routing.Route{
		Id:      "r",
		Path:    "/foo/bar",
		Filters: []filters.Filter{respond{status: 200, body: "ok"}},
	})

	assert.Equal(t, "ok", serve(p, "GET", "/foo//baz/../bar").Body.String())
}

func TestFilterContext(t *testing.T) {
	var (
		params  map[string]string
		env     map[string]string
		routeId interface{}
	)

	f := &filtertest.Filter{OnCall: func(ctx filters.FilterContext) {
		params = ctx.PathParams()
		env = ctx.Environment()
		routeId = ctx.StateBag()[filters.RouteIdKey]
		assert.Equal(t, "r", ctx.RouteId())
		assert.Equal(t, "acme", ctx.PathParam("org"))
		assert.NotNil(t, ctx.Context())
		assert.NotNil(t, ctx.Logger())
	}}

	p := testProxy(Params{Environment: environment.Static{"acme-org": {"host": "acme.internal"}}}, &routing.Route{
		Id:      "r",
		Path:    "/orgs/{org}",
		OrgId:   "acme-org",
		Filters: []filters.Filter{f, respond{status: 204}},
	})

	assert.Equal(t, http.StatusNoContent, serve(p, "GET", "/orgs/acme").Code)
	assert.Equal(t, map[string]string{"org": "acme"}, params)
	assert.Equal(t, "acme.internal", env["host"])
	assert.Equal(t, "r", routeId)
}

func TestEnvironmentFailure(t *testing.T) {
	f := &filtertest.Filter{}
	p := testProxy(Params{Environment: failingEnvironment{}}, &routing.Route{
		Id:      "r",
		Path:    "/",
		OrgId:   "acme",
		Filters: []filters.Filter{f},
	})

	assert.Equal(t, http.StatusServiceUnavailable, serve(p, "GET", "/").Code)
	assert.Equal(t, 0, f.Calls())
}

func TestErrorResponses(t *testing.T) {
	for _, tt := range []struct {
		msg    string
		filter filters.Filter
		status int
		body   string
	}{{
		msg:    "status error",
		filter: &filtertest.Filter{Err: filters.Status(http.StatusBadGateway, errors.New("dial tcp: connection refused"))},
		status: http.StatusBadGateway,
	}, {
		msg:    "wrapped status error",
		filter: &filtertest.Filter{Err: fmt.Errorf("upstream: %w", filters.Status(http.StatusGatewayTimeout, nil))},
		status: http.StatusGatewayTimeout,
	}, {
		msg:    "generic error",
		filter: &filtertest.Filter{Err: errors.New("secret internal details")},
		status: http.StatusInternalServerError,
	}, {
		msg:    "panic",
		filter: panicking{},
		status: http.StatusInternalServerError,
	}, {
		msg:    "no response",
		filter: &filtertest.Filter{},
		status: http.StatusNotFound,
	}, {
		msg:    "error after response",
		filter: respondThenFail{},
		status: http.StatusTeapot,
		body:   "partial",
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			p := testProxy(Params{}, &routing.Route{Id: "r", Path: "/", Filters: []filters.Filter{tt.filter}})
			rec := serve(p, "GET", "/")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "secret")
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

type respondThenFail struct{}

func (respondThenFail) Configure([]byte) error { return nil }

func (respondThenFail) Filter(ctx filters.FilterContext, _ filters.Chain) error {
	ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
	ctx.ResponseWriter().Write([]byte("partial"))
	return errors.New("stream broken")
}

func TestShortCircuit(t *testing.T) {
	second := &filtertest.Filter{}
	p := testProxy(Params{}, &routing.Route{
		Id:      "r",
		Path:    "/",
		Filters: []filters.Filter{respond{status: http.StatusUnauthorized}, second},
	})

	assert.Equal(t, http.StatusUnauthorized, serve(p, "GET", "/").Code)
	assert.Equal(t, 0, second.Calls())
}

func TestFilterMetrics(t *testing.T) {
	m := &metricstest.MockMetrics{}
	def := &routing.Definition{
		Id:      "r",
		Path:    "/",
		Filters: []routing.PluginRef{{Name: "first", Version: "1.0.0"}, {Name: "second", Version: "1.0.0"}},
	}

	p := testProxy(Params{Metrics: m}, &routing.Route{
		Id:         "r",
		Path:       "/",
		Filters:    []filters.Filter{&filtertest.Filter{}, respond{status: 200}},
		Definition: def,
	})

	require.Equal(t, http.StatusOK, serve(p, "GET", "/").Code)
	for _, name := range []string{"first", "second"} {
		d, ok := m.Timer(fmt.Sprintf(metricstest.KeyFilterRequest, name))
		assert.True(t, ok, name)
		assert.Len(t, d, 1, name)
	}

	_, ok := m.Timer(metricstest.KeyRouteLookup)
	assert.True(t, ok)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logging.Init(logging.Options{AccessLogOutput: &buf, AccessLogJSONEnabled: true}))
	defer logging.Init(logging.Options{AccessLogDisabled: true})

	p := testProxy(Params{},
		&routing.Route{
			Id:      "logged",
			Path:    "/logged",
			OrgId:   "acme",
			Filters: []filters.Filter{respond{status: 201, body: "created"}},
		},
		&routing.Route{
			Id:            "silent",
			Path:          "/silent",
			AccessLogConf: json.RawMessage(`{"enabled": false}`),
			Filters:       []filters.Filter{respond{status: 200}},
		},
	)

	serve(p, "POST", "/logged")
	serve(p, "GET", "/silent")
	serve(p, "GET", "/missing")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "logged", entry["route-id"])
	assert.Equal(t, "acme", entry["org-id"])
	assert.Equal(t, float64(201), entry["status"])
	assert.Equal(t, float64(len("created")), entry["response-size"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, float64(404), entry["status"])
}

func TestAccessLogDisabledGlobally(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logging.Init(logging.Options{AccessLogOutput: &buf}))
	defer logging.Init(logging.Options{AccessLogDisabled: true})

	p := testProxy(Params{AccessLogDisabled: true}, &routing.Route{Id: "r", Path: "/", Filters: []filters.Filter{respond{status: 200}}})
	serve(p, "GET", "/")
	assert.Empty(t, buf.String())
}

func TestAccessLogEnabled(t *testing.T) {
	for conf, enabled := range map[string]bool{
		``:                     true,
		`{}`:                   true,
		`{"enabled": true}`:    true,
		`{"enabled": false}`:   false,
		`{"other": "setting"}`: true,
	} {
		assert.Equal(t, enabled, accessLogEnabled([]byte(conf)), conf)
	}
}
