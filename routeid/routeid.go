// Package routeid generates ids for the route definitions that don't have
// one, e.g. in route files.
package routeid

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/rgwgateway/rgw/routing"
)

const prefix = "route"

// Generate returns a stable id for a route definition, derived from its
// content. Definitions with the same content get the same id.
func Generate(d *routing.Definition) string {
	c := *d
	c.Id = ""

	// marshaling a definition doesn't fail, its config fields are
	// validated raw JSON
	b, _ := json.Marshal(&c)
	return prefix + strconv.FormatUint(xxhash.Sum64(b), 16)
}

// GenerateIfNeeded sets a generated id on the definition if it doesn't
// have one.
func GenerateIfNeeded(d *routing.Definition) {
	if d.Id == "" {
		d.Id = Generate(d)
	}
}
