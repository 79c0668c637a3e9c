package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/rgwgateway/rgw/filters"
)

const (
	symbolName   = "NewInstance"
	manifestName = "plugin.yaml"
)

// Symbols gives access to the exported symbols of an opened module. It is
// implemented by *plugin.Plugin.
type Symbols interface {
	Lookup(symName string) (plugin.Symbol, error)
}

// OpenFunc opens a module file.
type OpenFunc func(path string) (Symbols, error)

func openPlugin(path string) (Symbols, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Manifest optionally describes the content of an install directory.
type Manifest struct {
	Name      string   `yaml:"name"`
	Version   string   `yaml:"version"`
	Entry     string   `yaml:"entry"`
	Libraries []string `yaml:"libraries"`
}

func readManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", manifestName, err)
	}

	if m.Entry == "" {
		return nil, fmt.Errorf("invalid %s: missing entry", manifestName)
	}

	for _, f := range append([]string{m.Entry}, m.Libraries...) {
		if !filepath.IsLocal(f) {
			return nil, fmt.Errorf("invalid %s: %w: %s", manifestName, errUnsafePath, f)
		}
	}

	return &m, nil
}

func constructor(sym plugin.Symbol) (func() filters.Configurable, bool) {
	switch f := sym.(type) {
	case func() filters.Configurable:
		return f, true
	case *func() filters.Configurable:
		if f == nil || *f == nil {
			return nil, false
		}

		return *f, true
	default:
		return nil, false
	}
}

func (r *Registry) lookupConstructor(path string) (func() filters.Configurable, error) {
	p, err := r.options.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	sym, err := p.Lookup(symbolName)
	if err != nil {
		return nil, nil
	}

	c, ok := constructor(sym)
	if !ok {
		return nil, fmt.Errorf("%s in %s has the wrong type %T", symbolName, path, sym)
	}

	return c, nil
}

// loadDir opens the modules of an install directory, and returns the
// constructor of the plugin instances.
func (r *Registry) loadDir(dir string) (func() filters.Configurable, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	if m != nil {
		for _, lib := range m.Libraries {
			if _, err := r.options.Open(filepath.Join(dir, lib)); err != nil {
				return nil, fmt.Errorf("failed to open library %s: %w", lib, err)
			}
		}

		c, err := r.lookupConstructor(filepath.Join(dir, m.Entry))
		if err != nil {
			return nil, err
		}

		if c == nil {
			return nil, fmt.Errorf("%w: %s", errNoEntry, m.Entry)
		}

		return c, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	var found func() filters.Configurable
	for _, f := range files {
		c, err := r.lookupConstructor(f)
		if err != nil {
			return nil, err
		}

		if c == nil {
			continue
		}

		if found != nil {
			return nil, errMultipleEntry
		}

		found = c
	}

	if found == nil {
		return nil, errNoEntry
	}

	return found, nil
}
