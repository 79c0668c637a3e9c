/*
Package header implements a predicate matching request headers.

	{"name": "X-Beta", "value": "on"}
	{"name": "Accept", "regexp": "json"}
	{"name": "Authorization"}

With multiple values for the header, any of them may match.
*/
package header

import (
	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/predicates"
)

const (
	Name    = "header"
	Version = "1.0.0"
)

type predicate struct {
	matcher *predicates.Matcher
}

// New creates an unconfigured header predicate.
func New() filters.Configurable { return &predicate{} }

func (p *predicate) Configure(raw []byte) error {
	var c predicates.ValueConfig
	if err := filters.DecodeConfig(raw, &c); err != nil {
		return err
	}

	m, err := predicates.NewMatcher(c)
	if err != nil {
		return err
	}

	p.matcher = m
	return nil
}

func (p *predicate) Test(ctx filters.FilterContext) bool {
	for _, v := range ctx.Request().Header.Values(p.matcher.Name()) {
		if p.matcher.Match(v) {
			return true
		}
	}

	return false
}
