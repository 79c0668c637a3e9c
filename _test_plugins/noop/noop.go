// Command noop is built as a Go plugin for the plugin loader tests.
package main

import (
	"github.com/rgwgateway/rgw/filters"
)

type noopFilter struct {
	config []byte
}

func (f *noopFilter) Configure(config []byte) error {
	f.config = config
	return nil
}

func (f *noopFilter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	ctx.Request().Header.Set("X-Noop", "true")
	return next.Next(ctx)
}

func NewInstance() filters.Configurable {
	return &noopFilter{}
}

func main() {}
