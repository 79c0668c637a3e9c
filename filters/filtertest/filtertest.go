// Package filtertest implements mock versions of the FilterContext and
// Filter interfaces used during testing filters.
package filtertest

import (
	"context"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw/filters"
)

// Context is a simple filter context implementation backed by its
// exported fields.
type Context struct {
	FResponseWriter http.ResponseWriter
	FRequest        *http.Request
	FParams         map[string]string
	FEnvironment    map[string]string
	FStateBag       map[string]interface{}
	FRouteId        string
	FLogger         log.FieldLogger
}

// NewContext creates a context with initialized state bag.
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	return &Context{
		FResponseWriter: w,
		FRequest:        r,
		FStateBag:       make(map[string]interface{}),
	}
}

func (fc *Context) ResponseWriter() http.ResponseWriter     { return fc.FResponseWriter }
func (fc *Context) SetResponseWriter(w http.ResponseWriter) { fc.FResponseWriter = w }
func (fc *Context) Request() *http.Request                  { return fc.FRequest }
func (fc *Context) SetRequest(r *http.Request)              { fc.FRequest = r }
func (fc *Context) PathParam(key string) string             { return fc.FParams[key] }
func (fc *Context) PathParams() map[string]string           { return fc.FParams }
func (fc *Context) Environment() map[string]string          { return fc.FEnvironment }
func (fc *Context) StateBag() map[string]interface{}        { return fc.FStateBag }
func (fc *Context) RouteId() string                         { return fc.FRouteId }

func (fc *Context) Context() context.Context {
	if fc.FRequest == nil {
		return context.Background()
	}

	return fc.FRequest.Context()
}

func (fc *Context) Logger() log.FieldLogger {
	if fc.FLogger == nil {
		return log.StandardLogger()
	}

	return fc.FLogger
}

// Filter is a configurable test filter. It records its configuration and
// the number of its invocations, optionally responds with a fixed
// status, and calls the next filter unless Stop is set.
type Filter struct {
	mu     sync.Mutex
	Config []byte
	Status int
	Stop   bool
	Err    error
	calls  int
	OnCall func(filters.FilterContext)
}

func (f *Filter) Configure(config []byte) error {
	f.Config = config
	return nil
}

func (f *Filter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.OnCall != nil {
		f.OnCall(ctx)
	}

	if f.Err != nil {
		return f.Err
	}

	if f.Status != 0 {
		ctx.ResponseWriter().WriteHeader(f.Status)
	}

	if f.Stop {
		return nil
	}

	return next.Next(ctx)
}

// Calls returns how many times the filter was executed.
func (f *Filter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Predicate is a test predicate returning a fixed result.
type Predicate struct {
	Config []byte
	Result bool
}

func (p *Predicate) Configure(config []byte) error {
	p.Config = config
	return nil
}

func (p *Predicate) Test(filters.FilterContext) bool { return p.Result }
