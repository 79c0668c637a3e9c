package predicates

import (
	"regexp"

	"github.com/rgwgateway/rgw/filters"
)

// ValueConfig is the shared configuration of the predicates matching a
// named value of the request, exactly or by a regular expression. When
// neither is set, the predicate only checks that the value is present.
type ValueConfig struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Regexp string `json:"regexp"`
}

// Matcher tests request values by a ValueConfig.
type Matcher struct {
	name  string
	value string
	exp   *regexp.Regexp
}

// NewMatcher validates the config and compiles its regular expression.
func NewMatcher(c ValueConfig) (*Matcher, error) {
	if c.Name == "" {
		return nil, filters.InvalidConfigf("missing name")
	}

	if c.Value != "" && c.Regexp != "" {
		return nil, filters.InvalidConfigf("only one of value and regexp is allowed")
	}

	m := &Matcher{name: c.Name, value: c.Value}
	if c.Regexp != "" {
		exp, err := regexp.Compile(c.Regexp)
		if err != nil {
			return nil, filters.InvalidConfigf("invalid regexp: %v", err)
		}

		m.exp = exp
	}

	return m, nil
}

// Name returns the configured name.
func (m *Matcher) Name() string { return m.name }

// Match tests a value.
func (m *Matcher) Match(v string) bool {
	switch {
	case m.exp != nil:
		return m.exp.MatchString(v)
	case m.value != "":
		return v == m.value
	default:
		return true
	}
}
