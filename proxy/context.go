package proxy

import (
	stdlibcontext "context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw/routing"
)

type context struct {
	responseWriter http.ResponseWriter
	request        *http.Request
	route          *routing.Route
	pathParams     map[string]string
	environment    map[string]string
	stateBag       map[string]interface{}
	logger         log.FieldLogger
	startServe     time.Time
}

func newContext(w http.ResponseWriter, r *http.Request, logger log.FieldLogger) *context {
	return &context{
		responseWriter: w,
		request:        r,
		stateBag:       make(map[string]interface{}),
		logger:         logger,
		startServe:     time.Now(),
	}
}

func (c *context) applyRoute(route *routing.Route, params map[string]string) {
	c.route = route
	c.pathParams = params
	c.logger = c.logger.WithField("route", route.Id)
}

func (c *context) routeId() string {
	if c.route == nil {
		return ""
	}

	return c.route.Id
}

func (c *context) ResponseWriter() http.ResponseWriter     { return c.responseWriter }
func (c *context) SetResponseWriter(w http.ResponseWriter) { c.responseWriter = w }
func (c *context) Request() *http.Request                  { return c.request }
func (c *context) SetRequest(r *http.Request)              { c.request = r }
func (c *context) PathParam(key string) string             { return c.pathParams[key] }
func (c *context) PathParams() map[string]string           { return c.pathParams }
func (c *context) Environment() map[string]string          { return c.environment }
func (c *context) StateBag() map[string]interface{}        { return c.stateBag }
func (c *context) RouteId() string                         { return c.routeId() }
func (c *context) Context() stdlibcontext.Context          { return c.request.Context() }
func (c *context) Logger() log.FieldLogger                 { return c.logger }
