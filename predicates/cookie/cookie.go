/*
Package cookie implements a predicate to check parsed cookie headers by
name and value.

	{"name": "tcial", "regexp": "^enabled$"}
*/
package cookie

import (
	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/predicates"
)

const (
	Name    = "cookie"
	Version = "1.0.0"
)

type predicate struct {
	matcher *predicates.Matcher
}

// New creates an unconfigured cookie predicate.
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
	c, err := ctx.Request().Cookie(p.matcher.Name())
	if err != nil {
		return false
	}

	return p.matcher.Match(c.Value)
}
