package config

import (
	"strings"
)

// listFlag is a flag of separated values, or a YAML list.
type listFlag struct {
	sep    string
	values []string
}

func newListFlag(sep string) *listFlag {
	return &listFlag{sep: sep}
}

func commaListFlag() *listFlag {
	return newListFlag(",")
}

func (lf *listFlag) Set(value string) error {
	if lf == nil {
		return nil
	}

	lf.values = nil
	for _, v := range strings.Split(value, lf.sep) {
		if v = strings.TrimSpace(v); v != "" {
			lf.values = append(lf.values, v)
		}
	}

	return nil
}

func (lf *listFlag) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var values []string
	if err := unmarshal(&values); err != nil {
		return err
	}

	lf.values = values
	return nil
}

func (lf *listFlag) String() string {
	if lf == nil {
		return ""
	}

	return strings.Join(lf.values, lf.sep)
}

// Values returns the parsed values.
func (lf *listFlag) Values() []string {
	if lf == nil {
		return nil
	}

	return lf.values
}
