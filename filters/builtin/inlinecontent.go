package builtin

import (
	"net/http"
	"strconv"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/pathmatch"
)

type inlineContentConfig struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
}

type inlineContent struct {
	status int
	text   string
	mime   string
}

// NewInlineContent creates an inline-content filter. It responds with
// the configured status and body, without calling the rest of the chain:
//
//	{"status": 420, "body": "Enhance Your Calm"}
//	{"body": "{\"foo\": 42}", "contentType": "application/json"}
//
// The status defaults to 200. When the content type is not set, it tries
// to detect it using http.DetectContentType. The body may reference the
// path params and the environment of the route as {name}.
func NewInlineContent() filters.Configurable {
	return &inlineContent{}
}

func (c *inlineContent) Configure(raw []byte) error {
	cfg := inlineContentConfig{Status: http.StatusOK}
	if err := filters.DecodeConfig(raw, &cfg); err != nil {
		return err
	}

	if cfg.Status < 100 || cfg.Status > 599 {
		return filters.InvalidConfigf("invalid status: %d", cfg.Status)
	}

	c.status = cfg.Status
	c.text = cfg.Body
	c.mime = cfg.ContentType
	if c.mime == "" {
		c.mime = http.DetectContentType([]byte(c.text))
	}

	return nil
}

func (c *inlineContent) Filter(ctx filters.FilterContext, _ filters.Chain) error {
	text := pathmatch.Expand(c.text, ctx.PathParams(), ctx.Environment())

	h := ctx.ResponseWriter().Header()
	h.Set("Content-Type", c.mime)
	h.Set("Content-Length", strconv.Itoa(len(text)))
	ctx.ResponseWriter().WriteHeader(c.status)
	if ctx.Request().Method != http.MethodHead {
		_, err := ctx.ResponseWriter().Write([]byte(text))
		return err
	}

	return nil
}
