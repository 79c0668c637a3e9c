package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/filtertest"
	"github.com/rgwgateway/rgw/metrics/metricstest"
	"github.com/rgwgateway/rgw/proxy/backendtest"
)

func configuredUpstream(t *testing.T, o UpstreamOptions, config string) filters.Filter {
	t.Helper()
	tr := http.DefaultTransport.(*http.Transport).Clone()
	t.Cleanup(tr.CloseIdleConnections)
	o.Transport = tr

	f := NewUpstream(o)().(filters.Filter)
	require.NoError(t, f.Configure([]byte(config)))
	return f
}

func upstreamContext(r *http.Request, params, env map[string]string) (*filtertest.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	ctx := filtertest.NewContext(rec, r)
	ctx.FParams = params
	ctx.FEnvironment = env
	ctx.FRouteId = "r"
	return ctx, rec
}

func TestUpstreamConfig(t *testing.T) {
	for _, tt := range []struct {
		config string
		valid  bool
	}{
		{`{"upstreamEndpoint": "http://example.org"}`, true},
		{`{"upstreamEndpoint": "HTTPS://example.org/{id}", "timeout": 1.5}`, true},
		{`{"upstreamEndpoint": "ftp://example.org"}`, false},
		{`{"upstreamEndpoint": ""}`, false},
		{`{}`, false},
		{`{"upstreamEndpoint": 42}`, false},
		{`not json`, false},
	} {
		err := NewUpstream(UpstreamOptions{})().Configure([]byte(tt.config))
		if tt.valid {
			assert.NoError(t, err, tt.config)
		} else {
			assert.ErrorIs(t, err, filters.ErrInvalidConfig, tt.config)
		}
	}
}

func TestUpstreamForwardsRequest(t *testing.T) {
	backend := backendtest.NewBackendRecorder()
	defer backend.Close()

	f := configuredUpstream(t, UpstreamOptions{}, `{"upstreamEndpoint": "`+backend.GetURL()+`/{service}/items/{id}?source=gw"}`)

	r := httptest.NewRequest("POST", "http://gateway.example.org/api/42?page=2", strings.NewReader("hello"))
	r.Header.Set("X-Custom", "value")
	r.Header.Set("Connection", "X-Hop")
	r.Header.Set("X-Hop", "dropped")
	r.Header.Set("Keep-Alive", "timeout=5")
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.RemoteAddr = "192.168.0.7:31234"

	ctx, rec := upstreamContext(r, map[string]string{"id": "42"}, map[string]string{"service": "catalog"})
	require.NoError(t, f.Filter(ctx, filters.Chain{}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())

	requests := backend.GetRequests()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/catalog/items/42?source=gw&page=2", req.URL)
	assert.Equal(t, strings.TrimPrefix(backend.GetURL(), "http://"), req.Host)
	assert.Equal(t, "value", req.Header.Get("X-Custom"))
	assert.Empty(t, req.Header.Get("X-Hop"))
	assert.Empty(t, req.Header.Get("Keep-Alive"))
	assert.Equal(t, "10.0.0.1, 192.168.0.7", req.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "hello", req.Body)
}

func TestUpstreamBasicAuth(t *testing.T) {
	backend := backendtest.NewBackendRecorder()
	defer backend.Close()

	endpoint := strings.Replace(backend.GetURL(), "http://", "http://user:secret@", 1)
	f := configuredUpstream(t, UpstreamOptions{}, `{"upstreamEndpoint": "`+endpoint+`"}`)

	ctx, _ := upstreamContext(httptest.NewRequest("GET", "/", nil), nil, nil)
	require.NoError(t, f.Filter(ctx, filters.Chain{}))

	req := backend.GetRequests()[0]
	rr := &http.Request{Header: req.Header}
	user, pass, ok := rr.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "user", user)
	assert.Equal(t, "secret", pass)
}

func TestUpstreamResponse(t *testing.T) {
	backend := backendtest.NewBackendRecorder()
	defer backend.Close()

	backend.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusCreated)
		for i := 0; i < 3; i++ {
			io.WriteString(w, "chunk")
			w.(http.Flusher).Flush()
		}
	})

	m := &metricstest.MockMetrics{}
	f := configuredUpstream(t, UpstreamOptions{Metrics: m}, `{"upstreamEndpoint": "`+backend.GetURL()+`"}`)
	ctx, rec := upstreamContext(httptest.NewRequest("GET", "/", nil), nil, nil)
	require.NoError(t, f.Filter(ctx, filters.Chain{}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "chunkchunkchunk", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Empty(t, rec.Header().Get("Connection"))

	_, ok := m.Timer("upstream.r")
	assert.True(t, ok)
}

func TestUpstreamTimeout(t *testing.T) {
	backend := backendtest.NewBackendRecorder()
	defer backend.Close()

	release := make(chan struct{})
	defer close(release)
	backend.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	m := &metricstest.MockMetrics{}
	f := configuredUpstream(t, UpstreamOptions{Metrics: m}, `{"upstreamEndpoint": "`+backend.GetURL()+`", "timeout": 0.05}`)
	ctx, _ := upstreamContext(httptest.NewRequest("GET", "/", nil), nil, nil)

	start := time.Now()
	err := f.Filter(ctx, filters.Chain{})
	assert.Less(t, time.Since(start), 5*time.Second)

	var serr *filters.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusGatewayTimeout, serr.Code)

	errs, _ := m.Counter("upstream.r.errors")
	assert.Equal(t, int64(1), errs)
}

func TestUpstreamUnreachable(t *testing.T) {
	backend := backendtest.NewBackendRecorder()
	url := backend.GetURL()
	backend.Close()

	f := configuredUpstream(t, UpstreamOptions{}, `{"upstreamEndpoint": "`+url+`"}`)
	ctx, _ := upstreamContext(httptest.NewRequest("GET", "/", nil), nil, nil)

	var serr *filters.StatusError
	require.True(t, errors.As(f.Filter(ctx, filters.Chain{}), &serr))
	assert.Equal(t, http.StatusBadGateway, serr.Code)
}

func TestUpstreamUnresolvedHost(t *testing.T) {
	f := configuredUpstream(t, UpstreamOptions{}, `{"upstreamEndpoint": "http://{missing}"}`)
	ctx, _ := upstreamContext(httptest.NewRequest("GET", "/", nil), nil, nil)

	var serr *filters.StatusError
	require.True(t, errors.As(f.Filter(ctx, filters.Chain{}), &serr))
	assert.Equal(t, http.StatusBadGateway, serr.Code)
}
