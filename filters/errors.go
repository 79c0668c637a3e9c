package filters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidConfig is wrapped by the errors returned from Configure when
// the configuration of a plugin instance is malformed or invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// StatusError is returned by filters that fail with a preferred response
// status, e.g. 502 when an upstream call failed. When a StatusError
// reaches the gateway, it responds with its code.
type StatusError struct {
	Code int
	Err  error
}

// Status wraps an error with a response status.
func Status(code int, err error) error {
	return &StatusError{Code: code, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Code)
	}

	return fmt.Sprintf("%d %s: %v", e.Code, http.StatusText(e.Code), e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// InvalidConfigf creates a configuration error wrapping
// ErrInvalidConfig.
func InvalidConfigf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// DecodeConfig decodes the raw JSON configuration of a plugin instance
// into v. Fields of v missing from the configuration keep their values,
// so defaults can be set before calling it, and unknown fields are
// ignored. An empty configuration or null leaves v unchanged.
func DecodeConfig(config []byte, v interface{}) error {
	config = bytes.TrimSpace(config)
	if len(config) == 0 || bytes.Equal(config, []byte("null")) {
		return nil
	}

	if err := json.Unmarshal(config, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
