package circuit

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ConsecutiveSettings configure a breaker that opens after a number of
// failures in a row. Timeout is in seconds.
type ConsecutiveSettings struct {
	Failures         int   `json:"failures"`
	Timeout          int   `json:"timeout"`
	HalfOpenRequests int   `json:"halfOpenRequests"`
	FailureCodes     []int `json:"failureCodes"`
}

// ConsecutiveBreaker wraps the two step breaker of gobreaker.
type ConsecutiveBreaker struct {
	settings ConsecutiveSettings
	gb       *gobreaker.TwoStepCircuitBreaker
}

// NewConsecutive creates a breaker that trips after s.Failures
// consecutive failures.
func NewConsecutive(name string, s ConsecutiveSettings) *ConsecutiveBreaker {
	b := &ConsecutiveBreaker{
		settings: s,
	}

	b.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(s.HalfOpenRequests),
		Timeout:     time.Duration(s.Timeout) * time.Second,
		ReadyToTrip: b.readyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infof("circuit breaker %v went from %v to %v", name, from.String(), to.String())
		},
	})

	return b
}

func (b *ConsecutiveBreaker) readyToTrip(c gobreaker.Counts) bool {
	return int(c.ConsecutiveFailures) >= b.settings.Failures
}

// Allow has the same contract as Breaker.Allow.
func (b *ConsecutiveBreaker) Allow() (func(bool), bool) {
	done, err := b.gb.Allow()

	// this error can only indicate that the breaker is not closed
	closed := err == nil

	if !closed {
		return nil, false
	}
	return done, true
}

// State maps the gobreaker state to the package states.
func (b *ConsecutiveBreaker) State() State {
	switch b.gb.State() {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

func (b *ConsecutiveBreaker) isFailureCode(code int) bool {
	return Settings{FailureCodes: b.settings.FailureCodes}.IsFailureCode(code)
}

// Run has the same contract as Breaker.Run.
func (b *ConsecutiveBreaker) Run(call func() (int, error)) error {
	done, ok := b.Allow()
	if !ok {
		return &OpenError{State: b.State()}
	}

	status, err := call()
	done(err == nil && !b.isFailureCode(status))
	return err
}

// IsOpen tells whether err was returned by a breaker rejecting a call.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
