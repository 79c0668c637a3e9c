package circuit

import (
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings of a sliding window breaker. The durations are in seconds.
type Settings struct {
	FailureCodes          []int `json:"failureCodes"`
	FailureCountThreshold int   `json:"failureCountThreshold"`
	SlidingWindowSize     int   `json:"slidingWindowSize"`
	MinimumCalls          int   `json:"minimumCalls"`
	OpenStateDuration     int   `json:"openStateDuration"`
	HalfOpenStateCalls    int   `json:"halfOpenStateCalls"`
	HalfOpenStateDuration int   `json:"halfOpenStateDuration"`
}

// DefaultSettings returns the settings used for the fields that a
// configuration leaves out.
func DefaultSettings() Settings {
	return Settings{
		FailureCodes:          []int{500, 502, 503, 504},
		FailureCountThreshold: 50,
		SlidingWindowSize:     60,
		MinimumCalls:          100,
		OpenStateDuration:     60,
		HalfOpenStateCalls:    10,
		HalfOpenStateDuration: 60,
	}
}

// Validate checks that the numeric settings are positive.
func (s Settings) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"failureCountThreshold", s.FailureCountThreshold},
		{"slidingWindowSize", s.SlidingWindowSize},
		{"minimumCalls", s.MinimumCalls},
		{"openStateDuration", s.OpenStateDuration},
		{"halfOpenStateCalls", s.HalfOpenStateCalls},
		{"halfOpenStateDuration", s.HalfOpenStateDuration},
	} {
		if f.value <= 0 {
			return fmt.Errorf("invalid circuit breaker setting %s: %d", f.name, f.value)
		}
	}

	return nil
}

// IsFailureCode tells whether a response status counts as a failure.
func (s Settings) IsFailureCode(code int) bool {
	return slices.Contains(s.FailureCodes, code)
}

// Options of a breaker that are not part of its configuration.
type Options struct {
	// Name is used when logging the state changes.
	Name string

	// Now, when set, replaces time.Now.
	Now func() time.Time

	// OnStateChange, when set, is called on every state transition,
	// while the breaker is locked.
	OnStateChange func(from, to State)
}

// OpenError is returned by Run when the call was rejected.
type OpenError struct {
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is %v", e.State)
}

// Breaker is a sliding window circuit breaker. It is safe for concurrent
// use.
type Breaker struct {
	settings Settings
	options  Options

	mu         sync.Mutex
	state      State
	since      time.Time
	generation uint64
	window     *window
	successes  int
}

// New creates a closed breaker.
func New(s Settings, o Options) *Breaker {
	if o.Now == nil {
		o.Now = time.Now
	}

	return &Breaker{
		settings: s,
		options:  o,
		state:    Closed,
		since:    o.Now(),
		window:   newWindow(s.SlidingWindowSize),
	}
}

// State returns the current state, applying the timed transitions first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.options.Now())
	return b.state
}

// Settings returns the settings of the breaker.
func (b *Breaker) Settings() Settings {
	return b.settings
}

func (b *Breaker) setState(to State, now time.Time) {
	from := b.state
	b.state = to
	b.since = now
	b.generation++
	b.successes = 0
	if to != HalfOpen {
		b.window.reset()
	}

	if b.options.Name != "" {
		log.Infof("circuit breaker %v went from %v to %v", b.options.Name, from, to)
	}

	if b.options.OnStateChange != nil {
		b.options.OnStateChange(from, to)
	}
}

func (b *Breaker) advance(now time.Time) {
	for {
		switch b.state {
		case Open:
			d := seconds(b.settings.OpenStateDuration)
			if now.Sub(b.since) < d {
				return
			}

			since := b.since.Add(d)
			b.setState(HalfOpen, now)
			b.since = since
		case HalfOpen:
			d := seconds(b.settings.HalfOpenStateDuration)
			if now.Sub(b.since) < d {
				return
			}

			since := b.since.Add(d)
			b.setState(Open, now)
			b.since = since
		default:
			return
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Allow tells whether a call can go ahead. When it can, the returned
// function must be called exactly once with the outcome of the call,
// true meaning success. Outcomes reported after a state transition
// that happened during the call are ignored.
func (b *Breaker) Allow() (func(bool), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.options.Now())
	if b.state == Open {
		return nil, false
	}

	generation := b.generation
	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.done(generation, success) })
	}, true
}

func (b *Breaker) done(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.options.Now()
	b.advance(now)
	if generation != b.generation {
		return
	}

	switch b.state {
	case Closed:
		b.window.record(now, !success)
		total, failures := b.window.counts(now)
		if total >= b.settings.MinimumCalls && failures >= b.settings.FailureCountThreshold {
			b.setState(Open, now)
		}
	case HalfOpen:
		if !success {
			b.setState(Open, now)
			return
		}

		b.successes++
		if b.successes >= b.settings.HalfOpenStateCalls {
			b.setState(Closed, now)
		}
	}
}

// Run executes call unless the breaker is open, and records its
// outcome. The call fails when it returns an error or a status listed
// in the failure codes. When the breaker is open, Run returns an
// *OpenError without executing call.
func (b *Breaker) Run(call func() (int, error)) error {
	done, ok := b.Allow()
	if !ok {
		return &OpenError{State: Open}
	}

	status, err := call()
	done(err == nil && !b.settings.IsFailureCode(status))
	return err
}
