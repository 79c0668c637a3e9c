package header

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/filtertest"
)

func TestHeader(t *testing.T) {
	for _, tt := range []struct {
		msg     string
		config  string
		headers map[string][]string
		match   bool
	}{{
		msg:     "exact value",
		config:  `{"name": "X-Beta", "value": "on"}`,
		headers: map[string][]string{"X-Beta": {"on"}},
		match:   true,
	}, {
		msg:     "different value",
		config:  `{"name": "X-Beta", "value": "on"}`,
		headers: map[string][]string{"X-Beta": {"off"}},
	}, {
		msg:    "missing header",
		config: `{"name": "X-Beta", "value": "on"}`,
	}, {
		msg:     "any of multiple values",
		config:  `{"name": "Accept", "regexp": "json$"}`,
		headers: map[string][]string{"Accept": {"text/html", "application/json"}},
		match:   true,
	}, {
		msg:     "presence only",
		config:  `{"name": "Authorization"}`,
		headers: map[string][]string{"Authorization": {""}},
		match:   true,
	}, {
		msg:     "canonical name",
		config:  `{"name": "x-beta", "value": "on"}`,
		headers: map[string][]string{"X-Beta": {"on"}},
		match:   true,
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			p := New().(filters.Predicate)
			require.NoError(t, p.Configure([]byte(tt.config)))

			r := httptest.NewRequest("GET", "/", nil)
			for k, vs := range tt.headers {
				for _, v := range vs {
					r.Header.Add(k, v)
				}
			}

			assert.Equal(t, tt.match, p.Test(filtertest.NewContext(httptest.NewRecorder(), r)))
		})
	}
}

func TestConfigure(t *testing.T) {
	for _, config := range []string{
		``,
		`{"value": "on"}`,
		`{"name": "X-Beta", "value": "on", "regexp": "on"}`,
		`{"name": "X-Beta", "regexp": "("}`,
		`[]`,
	} {
		assert.ErrorIs(t, New().Configure([]byte(config)), filters.ErrInvalidConfig, config)
	}
}
