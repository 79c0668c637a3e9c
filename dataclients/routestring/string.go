// Package routestring provides a DataClient implementation for setting
// route definitions in form of a YAML or JSON string.
//
// Usage from the command line:
//
//	rgw -inline-routes '[{"id": "hello", "path": "/hello", "filters": [...]}]'
//
// The text is either a list of route definitions, or an object with the
// list in its "routes" field. Definitions without an id get one generated
// from their content.
package routestring

import (
	"bytes"
	"context"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/rgwgateway/rgw/routeid"
	"github.com/rgwgateway/rgw/routing"
)

type document struct {
	Routes []*routing.Definition `json:"routes"`
}

type routes struct {
	parsed []*routing.Definition
}

// Parse parses route definitions from YAML or JSON.
func Parse(b []byte) ([]*routing.Definition, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}

	var defs []*routing.Definition
	if err := yaml.Unmarshal(b, &defs); err == nil {
		return compact(defs), nil
	}

	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid route definitions: %w", err)
	}

	return compact(doc.Routes), nil
}

func compact(defs []*routing.Definition) []*routing.Definition {
	var c []*routing.Definition
	for _, d := range defs {
		if d != nil {
			routeid.GenerateIfNeeded(d)
			c = append(c, d)
		}
	}

	return c
}

// New creates a data client that parses a string of route definitions
// and serves it for the routing package.
func New(r string) (routing.DataClient, error) {
	parsed, err := Parse([]byte(r))
	if err != nil {
		return nil, err
	}

	return &routes{parsed: parsed}, nil
}

// NewList creates a data client that parses a list of strings of route
// definitions and serves it for the routing package.
func NewList(rs []string) (routing.DataClient, error) {
	var parsed []*routing.Definition
	for i, r := range rs {
		pr, err := Parse([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("#%d: %w", i, err)
		}

		parsed = append(parsed, pr...)
	}

	return &routes{parsed: parsed}, nil
}

func (r *routes) LoadAll(context.Context) ([]*routing.Definition, error) {
	return r.parsed, nil
}
