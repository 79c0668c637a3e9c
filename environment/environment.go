/*
Package environment provides the environment variables of the
organizations owning the routes.

The variables are looked up by the OrgId of the matched route, and they
can be referenced by the filter configurations as {name}, e.g. in the
upstream endpoint of the proxy filter.
*/
package environment

import (
	"context"
	"maps"
)

// Provider looks up the environment variables of an organization.
type Provider interface {

	// GetEnvForOrg returns the variables for the key. Unknown keys
	// return an empty mapping and no error. The returned map must not
	// be modified.
	GetEnvForOrg(ctx context.Context, key string) (map[string]string, error)
}

// Static serves a fixed set of environments.
type Static map[string]map[string]string

func (s Static) GetEnvForOrg(_ context.Context, key string) (map[string]string, error) {
	return s[key], nil
}

// Void is a provider without environments.
type Void struct{}

func (Void) GetEnvForOrg(context.Context, string) (map[string]string, error) { return nil, nil }

// Merge returns a copy of the environments in s extended with the ones in
// other. For keys present in both, the variables are merged, and other
// wins.
func (s Static) Merge(other Static) Static {
	merged := make(Static, len(s)+len(other))
	for k, v := range s {
		merged[k] = maps.Clone(v)
	}

	for k, v := range other {
		if merged[k] == nil {
			merged[k] = make(map[string]string, len(v))
		}

		maps.Copy(merged[k], v)
	}

	return merged
}
