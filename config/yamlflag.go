package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// yamlFlag sets a structured option from a flag value in YAML, typically
// in flow style, e.g. -environment '{acme: {region: eu}}'.
type yamlFlag[T any] struct {
	Ptr   **T
	value string // only for Set
}

func newYamlFlag[T any](ptr **T) *yamlFlag[T] {
	return &yamlFlag[T]{Ptr: ptr}
}

func (yf *yamlFlag[T]) Set(value string) error {
	var v T
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}

	*yf.Ptr = &v
	yf.value = value
	return nil
}

func (yf *yamlFlag[T]) String() string {
	if yf == nil {
		return ""
	}

	return yf.value
}
