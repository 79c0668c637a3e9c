/*
Package circuit provides the filters that protect the rest of the chain,
usually the upstream call, with a circuit breaker.

Every filter instance owns its breaker. When the breaker is open, the
filter responds with 503 Service Unavailable and the X-Circuit-Open: true
header, without calling the next filter.
*/
package circuit

import (
	"fmt"
	"net/http"

	"github.com/rgwgateway/rgw/circuit"
	"github.com/rgwgateway/rgw/filters"
)

const (
	Name                   = "circuit-breaker"
	ConsecutiveBreakerName = "consecutive-breaker"
	Version                = "1.0.0"

	HeaderCircuitOpen = "X-Circuit-Open"
)

type runner interface {
	Run(call func() (int, error)) error
}

// runs the rest of the chain through a breaker, recording the status
// written downstream
func run(r runner, ctx filters.FilterContext, next filters.Chain) error {
	err := r.Run(func() (int, error) {
		w := ctx.ResponseWriter()
		sw := filters.NewStatusWriter(w)
		ctx.SetResponseWriter(sw)
		defer ctx.SetResponseWriter(w)

		err := next.Next(ctx)
		return sw.Status(), err
	})

	if circuit.IsOpen(err) {
		ctx.Logger().Debugf("circuit breaker open on route %s", ctx.RouteId())
		w := ctx.ResponseWriter()
		w.Header().Set(HeaderCircuitOpen, "true")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return nil
	}

	return err
}

type breakerFilter struct {
	settings circuit.Settings
	breaker  *circuit.Breaker
}

// NewBreaker creates an unconfigured sliding window breaker filter.
func NewBreaker() filters.Configurable {
	return &breakerFilter{settings: circuit.DefaultSettings()}
}

func (f *breakerFilter) Configure(config []byte) error {
	if err := filters.DecodeConfig(config, &f.settings); err != nil {
		return err
	}

	if err := f.settings.Validate(); err != nil {
		return fmt.Errorf("%w: %w", filters.ErrInvalidConfig, err)
	}

	f.breaker = circuit.New(f.settings, circuit.Options{Name: Name})
	return nil
}

func (f *breakerFilter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	return run(f.breaker, ctx, next)
}

type consecutiveFilter struct {
	settings circuit.ConsecutiveSettings
	breaker  *circuit.ConsecutiveBreaker
}

// NewConsecutiveBreaker creates an unconfigured consecutive failures
// breaker filter.
func NewConsecutiveBreaker() filters.Configurable {
	return &consecutiveFilter{settings: circuit.ConsecutiveSettings{
		Timeout:          60,
		HalfOpenRequests: 1,
		FailureCodes:     circuit.DefaultSettings().FailureCodes,
	}}
}

func (f *consecutiveFilter) Configure(config []byte) error {
	if err := filters.DecodeConfig(config, &f.settings); err != nil {
		return err
	}

	switch {
	case f.settings.Failures <= 0:
		return filters.InvalidConfigf("failures must be positive, got %d", f.settings.Failures)
	case f.settings.Timeout <= 0:
		return filters.InvalidConfigf("timeout must be positive, got %d", f.settings.Timeout)
	case f.settings.HalfOpenRequests <= 0:
		return filters.InvalidConfigf("halfOpenRequests must be positive, got %d", f.settings.HalfOpenRequests)
	}

	f.breaker = circuit.NewConsecutive(ConsecutiveBreakerName, f.settings)
	return nil
}

func (f *consecutiveFilter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	return run(f.breaker, ctx, next)
}
