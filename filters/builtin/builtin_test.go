package builtin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/builtin"
	"github.com/rgwgateway/rgw/plugins"
	"github.com/rgwgateway/rgw/proxy/proxytest"
	"github.com/rgwgateway/rgw/routing"
)

func TestPluginsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, p := range builtin.Plugins(builtin.Options{}) {
		k := p.Name + "@" + p.Version
		assert.False(t, seen[k], k)
		seen[k] = true
	}
}

func TestRegister(t *testing.T) {
	r := plugins.NewRegistry(plugins.Options{})
	builtin.Register(r, builtin.Options{})

	for _, p := range builtin.Plugins(builtin.Options{}) {
		m, err := r.Resolve(context.Background(), p.Name, p.Version)
		require.NoError(t, err, p.Name)
		assert.True(t, m.Bundled(), p.Name)
	}

	_, err := r.NewPredicate(context.Background(), "header", builtin.Version, []byte(`{"name": "X-Beta"}`))
	assert.NoError(t, err)

	_, err = r.NewFilter(context.Background(), builtin.InlineContentName, builtin.Version, []byte(`{"status": 0}`))
	assert.ErrorIs(t, err, filters.ErrInvalidConfig)
}

func TestBundledPluginsInRoutes(t *testing.T) {
	beta := &routing.Definition{
		Id:   "beta",
		Path: "/",
		Predicate: &routing.PluginRef{
			Name:    "cookie",
			Version: "1.0.0",
			Config:  json.RawMessage(`{"name": "channel", "value": "beta"}`),
		},
		Filters: []routing.PluginRef{{
			Name:    "flow-id",
			Version: "1.0.0",
			Config:  json.RawMessage(`{"response": true}`),
		}, {
			Name:    "response-header",
			Version: "1.0.0",
			Config:  json.RawMessage(`{"set": {"X-Channel": "beta"}}`),
		}, {
			Name:    builtin.InlineContentName,
			Version: builtin.Version,
			Config:  json.RawMessage(`{"body": "beta"}`),
		}},
	}

	stable := &routing.Definition{
		Id:   "stable",
		Path: "/",
		Filters: []routing.PluginRef{{
			Name:    builtin.InlineContentName,
			Version: builtin.Version,
			Config:  json.RawMessage(`{"body": "stable"}`),
		}},
	}

	p := proxytest.New(beta, stable)
	defer p.Close()

	rsp, body, err := p.Client().GetBody(p.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "stable", string(body))
	assert.Empty(t, rsp.Header.Get("X-Flow-Id"))

	req, err := http.NewRequest("GET", p.URL+"/", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "channel", Value: "beta"})

	rsp, err = p.Client().Do(req)
	require.NoError(t, err)
	defer rsp.Body.Close()

	assert.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, "beta", rsp.Header.Get("X-Channel"))
	assert.Len(t, rsp.Header.Get("X-Flow-Id"), 16)
}
