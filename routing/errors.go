package routing

import (
	"errors"
	"fmt"

	"github.com/rgwgateway/rgw/metrics"
)

type invalidDefinitionError string

func (e invalidDefinitionError) Error() string { return string(e) }
func (e invalidDefinitionError) Code() string  { return string(e) }

var (
	errMissingId           = invalidDefinitionError("missing_id")
	errInvalidMethod       = invalidDefinitionError("invalid_method")
	errInvalidPath         = invalidDefinitionError("invalid_path")
	errPluginLoad          = invalidDefinitionError("plugin_load_failed")
	errInvalidPluginConfig = invalidDefinitionError("invalid_plugin_config")
)

// WrapInvalidDefinitionReason marks err with a reason reported in the
// invalid route metrics.
func WrapInvalidDefinitionReason(reason string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", invalidDefinitionError(reason), err)
}

// HandleValidationError reports a route that could not be built in the
// metrics, and returns the error prefixed with its reason.
func HandleValidationError(mtr metrics.Metrics, err error, routeId string) error {
	if err == nil {
		return nil
	}

	var defErr invalidDefinitionError
	reason := "other"
	if errors.As(err, &defErr) {
		reason = defErr.Code()
	}
	mtr.SetInvalidRoute(routeId, reason)

	return fmt.Errorf("%s: %w", reason, err)
}
