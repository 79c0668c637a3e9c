// Package testdataclient provides an in-memory data client for tests.
package testdataclient

import (
	"context"
	"errors"
	"sync"

	"github.com/rgwgateway/rgw/routing"
)

// ErrFailing is returned by a client set to fail.
var ErrFailing = errors.New("failing data client")

type Client struct {
	mu       sync.Mutex
	defs     []*routing.Definition
	failures int
	calls    int
}

// New creates a client serving defs.
func New(defs ...*routing.Definition) *Client {
	return &Client{defs: defs}
}

func (c *Client) LoadAll(context.Context) ([]*routing.Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.failures != 0 {
		if c.failures > 0 {
			c.failures--
		}

		return nil, ErrFailing
	}

	return append([]*routing.Definition(nil), c.defs...), nil
}

// Update replaces the served definitions.
func (c *Client) Update(defs ...*routing.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = defs
}

// FailNext makes the next n loads fail. A negative n makes every load
// fail.
func (c *Client) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
}

// Calls returns the number of loads.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
