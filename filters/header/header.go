/*
Package header provides filters that modify the request headers sent to
the upstream, and the response headers sent to the client.

The configuration has three optional fields, applied in this order:

	{
	  "remove": ["X-Internal"],
	  "set": {"X-Org": "{orgName}"},
	  "add": {"Via": "rgw"}
	}

The values may reference path parameters and environment variables of the
route, as {name}. Path parameters take precedence.
*/
package header

import (
	"net/http"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/pathmatch"
)

const (
	RequestHeaderName  = "request-header"
	ResponseHeaderName = "response-header"
	Version            = "1.0.0"
)

type config struct {
	Remove []string          `json:"remove"`
	Set    map[string]string `json:"set"`
	Add    map[string]string `json:"add"`
}

func (c *config) validate() error {
	if len(c.Remove) == 0 && len(c.Set) == 0 && len(c.Add) == 0 {
		return filters.InvalidConfigf("no header operations")
	}

	for _, k := range c.Remove {
		if k == "" {
			return filters.InvalidConfigf("empty header name")
		}
	}

	for _, m := range []map[string]string{c.Set, c.Add} {
		if _, ok := m[""]; ok {
			return filters.InvalidConfigf("empty header name")
		}
	}

	return nil
}

func (c *config) apply(ctx filters.FilterContext, h http.Header) {
	for _, k := range c.Remove {
		h.Del(k)
	}

	for k, v := range c.Set {
		h.Set(k, pathmatch.Expand(v, ctx.PathParams(), ctx.Environment()))
	}

	for k, v := range c.Add {
		h.Add(k, pathmatch.Expand(v, ctx.PathParams(), ctx.Environment()))
	}
}

type requestHeader struct {
	config config
}

// NewRequestHeader creates an unconfigured request header filter.
func NewRequestHeader() filters.Configurable { return &requestHeader{} }

func (f *requestHeader) Configure(raw []byte) error {
	if err := filters.DecodeConfig(raw, &f.config); err != nil {
		return err
	}

	return f.config.validate()
}

func (f *requestHeader) Filter(ctx filters.FilterContext, next filters.Chain) error {
	f.config.apply(ctx, ctx.Request().Header)
	return next.Next(ctx)
}

type responseHeader struct {
	config config
}

// NewResponseHeader creates an unconfigured response header filter.
func NewResponseHeader() filters.Configurable { return &responseHeader{} }

func (f *responseHeader) Configure(raw []byte) error {
	if err := filters.DecodeConfig(raw, &f.config); err != nil {
		return err
	}

	return f.config.validate()
}

// modifies the headers right before they are sent
type headerWriter struct {
	http.ResponseWriter
	ctx     filters.FilterContext
	config  *config
	applied bool
}

func (w *headerWriter) apply() {
	if !w.applied {
		w.applied = true
		w.config.apply(w.ctx, w.ResponseWriter.Header())
	}
}

func (w *headerWriter) WriteHeader(code int) {
	w.apply()
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerWriter) Write(b []byte) (int, error) {
	w.apply()
	return w.ResponseWriter.Write(b)
}

func (w *headerWriter) Flush() {
	w.apply()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *headerWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (f *responseHeader) Filter(ctx filters.FilterContext, next filters.Chain) error {
	w := ctx.ResponseWriter()
	ctx.SetResponseWriter(&headerWriter{ResponseWriter: w, ctx: ctx, config: &f.config})
	defer ctx.SetResponseWriter(w)

	return next.Next(ctx)
}
