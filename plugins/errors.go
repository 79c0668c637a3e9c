package plugins

import (
	"errors"
	"fmt"

	"github.com/rgwgateway/rgw/filters"
)

var (
	errNoInstance    = errors.New("plugin returned no instance")
	errNotFilter     = errors.New("plugin is not a filter")
	errNotPredicate  = errors.New("plugin is not a predicate")
	errNoEntry       = errors.New("no module exports " + symbolName)
	errMultipleEntry = errors.New("more than one module exports " + symbolName)
	errInvalidName   = errors.New("invalid plugin name or version")
	errUnsafePath    = errors.New("unsafe path in plugin archive")
	errNoRepository  = errors.New("plugin not installed and no repository configured")
)

// LoadError is returned when a plugin cannot be found, installed or
// opened, or it does not provide the expected kind of instance.
type LoadError struct {
	Name    string
	Version string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load plugin %s@%s: %v", e.Name, e.Version, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigError is returned when a plugin instance rejects its
// configuration. It matches filters.ErrInvalidConfig.
type ConfigError struct {
	Name    string
	Version string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for plugin %s@%s: %v", e.Name, e.Version, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool {
	return target == filters.ErrInvalidConfig
}
