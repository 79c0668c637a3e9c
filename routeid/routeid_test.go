package routeid

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rgwgateway/rgw/routing"
)

func TestGenerate(t *testing.T) {
	a := &routing.Definition{Path: "/foo", Filters: []routing.PluginRef{{Name: "proxy", Version: "1.0.0", Config: json.RawMessage(`{"upstreamEndpoint": "http://a"}`)}}}
	b := &routing.Definition{Path: "/foo", Filters: []routing.PluginRef{{Name: "proxy", Version: "1.0.0", Config: json.RawMessage(`{"upstreamEndpoint": "http://b"}`)}}}

	id := Generate(a)
	assert.True(t, strings.HasPrefix(id, "route"))
	assert.Equal(t, id, Generate(a))
	assert.NotEqual(t, id, Generate(b))

	withId := *a
	withId.Id = "foo"
	assert.Equal(t, id, Generate(&withId), "the existing id is ignored")
}

func TestGenerateIfNeeded(t *testing.T) {
	d := &routing.Definition{Id: "foo", Path: "/foo"}
	GenerateIfNeeded(d)
	assert.Equal(t, "foo", d.Id)

	d = &routing.Definition{Path: "/foo"}
	GenerateIfNeeded(d)
	assert.Equal(t, Generate(&routing.Definition{Path: "/foo"}), d.Id)
}
