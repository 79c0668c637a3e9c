package flowid

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/filtertest"
)

const testFlowId = "FLOW-ID-FOR-TESTING"

func runFilter(t *testing.T, config string, incoming string) (*filtertest.Context, string) {
	t.Helper()

	f := New().(filters.Filter)
	require.NoError(t, f.Configure([]byte(config)))

	r := httptest.NewRequest("GET", "/", nil)
	if incoming != "" {
		r.Header.Set(HeaderName, incoming)
	}

	var upstream string
	downstream := &filtertest.Filter{OnCall: func(ctx filters.FilterContext) {
		upstream = ctx.Request().Header.Get(HeaderName)
	}}

	ctx := filtertest.NewContext(httptest.NewRecorder(), r)
	require.NoError(t, f.Filter(ctx, filters.NewChain([]filters.Filter{downstream})))
	require.Equal(t, 1, downstream.Calls())
	return ctx, upstream
}

func TestNewFlowId(t *testing.T) {
	ctx, upstream := runFilter(t, ``, "")
	assert.Len(t, upstream, defaultLen)
	assert.Equal(t, upstream, ctx.StateBag()[filters.FlowIdKey])
}

func TestFlowIdReplaced(t *testing.T) {
	_, upstream := runFilter(t, `{"reuse": false}`, testFlowId)
	assert.NotEqual(t, testFlowId, upstream)
}

func TestFlowIdReused(t *testing.T) {
	ctx, upstream := runFilter(t, `{"reuse": true}`, testFlowId)
	assert.Equal(t, testFlowId, upstream)
	assert.Equal(t, testFlowId, ctx.StateBag()[filters.FlowIdKey])
}

func TestInvalidFlowIdNotReused(t *testing.T) {
	_, upstream := runFilter(t, `{"reuse": true}`, "invalid flow id")
	assert.NotEqual(t, "invalid flow id", upstream)
	assert.Len(t, upstream, defaultLen)
}

func TestFlowIdGenerators(t *testing.T) {
	_, upstream := runFilter(t, `{"generator": "uuid"}`, "")
	assert.True(t, NewUUIDGenerator().IsValid(upstream), upstream)

	_, upstream = runFilter(t, `{"generator": "ulid"}`, "")
	assert.True(t, NewULIDGenerator().IsValid(upstream), upstream)

	_, upstream = runFilter(t, `{"length": 32}`, "")
	assert.Len(t, upstream, 32)
}

func TestFlowIdInResponse(t *testing.T) {
	ctx, upstream := runFilter(t, `{"response": true}`, "")
	assert.Equal(t, upstream, ctx.ResponseWriter().Header().Get(HeaderName))
}

func TestConfigure(t *testing.T) {
	for _, config := range []string{
		`{"generator": "snowflake"}`,
		`{"length": 4}`,
		`{"length": 65}`,
		`{"reuse": "yes"}`,
	} {
		assert.ErrorIs(t, New().Configure([]byte(config)), filters.ErrInvalidConfig, config)
	}
}
