// Package routefile implements a DataClient reading the route definitions
// from a YAML or JSON file. The file is read on every update, so changes
// are picked up by the next poll or notification.
package routefile

import (
	"context"
	"fmt"
	"os"

	"github.com/rgwgateway/rgw/dataclients/routestring"
	"github.com/rgwgateway/rgw/routing"
)

type Client struct {
	path string
}

// New creates a file data client. It fails when the file cannot be
// parsed.
func New(path string) (*Client, error) {
	c := &Client{path: path}
	if _, err := c.LoadAll(context.Background()); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) LoadAll(context.Context) ([]*routing.Definition, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	defs, err := routestring.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.path, err)
	}

	return defs, nil
}
