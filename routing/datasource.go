package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rgwgateway/rgw/metrics"
)

// DataClient instances provide the route definitions. LoadAll returns the
// full current set of definitions.
type DataClient interface {
	LoadAll(ctx context.Context) ([]*Definition, error)
}

const (
	defaultRetryInterval = time.Second
	defaultMaxRetries    = 5

	KeyRoutesTotal    = "routes.total"
	KeyUpdateFailures = "routes.update.failures"
)

// UpdaterOptions configure an Updater.
type UpdaterOptions struct {
	// DataClients provide the route definitions. When two clients
	// provide a route with the same id, the one later in the list wins.
	DataClients []DataClient

	// Table receives the routes.
	Table *Table

	// Builder creates the routes from the definitions.
	Builder *Builder

	// PollInterval, when positive, triggers an update periodically.
	PollInterval time.Duration

	// MinTriggerInterval, when positive, limits the updates requested
	// with Trigger to one per interval. Triggers received in between are
	// merged into the next update.
	MinTriggerInterval time.Duration

	// RetryInterval is the initial interval of the exponential backoff
	// used when a data client fails. Defaults to one second.
	RetryInterval time.Duration

	// MaxRetries is the number of attempts made to load the definitions
	// from a client during one update. Defaults to 5.
	MaxRetries uint

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics
}

// Updater keeps the route table in sync with the data clients.
type Updater struct {
	options   UpdaterOptions
	trigger   chan struct{}
	firstLoad chan struct{}
	once      sync.Once
}

func NewUpdater(o UpdaterOptions) *Updater {
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	return &Updater{
		options:   o,
		trigger:   make(chan struct{}, 1),
		firstLoad: make(chan struct{}),
	}
}

// Trigger requests an update without waiting for it. Triggers received
// while an update is pending are merged into it.
func (u *Updater) Trigger() {
	select {
	case u.trigger <- struct{}{}:
	default:
	}
}

// FirstLoad is closed after the first successful update.
func (u *Updater) FirstLoad() <-chan struct{} {
	return u.firstLoad
}

func (u *Updater) load(ctx context.Context, c DataClient) ([]*Definition, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.options.RetryInterval

	return backoff.Retry(ctx, func() ([]*Definition, error) {
		return c.LoadAll(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(u.options.MaxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("failed to load route definitions, retrying in %v: %v", next, err)
		}),
	)
}

func mergeDefs(defsByClient [][]*Definition) []*Definition {
	var (
		all   []*Definition
		index = make(map[string]int)
	)

	for _, defs := range defsByClient {
		for _, d := range defs {
			if i, ok := index[d.Id]; ok {
				all[i] = d
				continue
			}

			index[d.Id] = len(all)
			all = append(all, d)
		}
	}

	return all
}

// Update loads the definitions from every client, and replaces the routes
// in the table. When any of the clients fails, the table is left
// unchanged.
func (u *Updater) Update(ctx context.Context) error {
	var defsByClient [][]*Definition
	for _, c := range u.options.DataClients {
		defs, err := u.load(ctx, c)
		if err != nil {
			u.options.Metrics.IncCounter(KeyUpdateFailures)
			return fmt.Errorf("failed to load route definitions: %w", err)
		}

		defsByClient = append(defsByClient, defs)
	}

	defs := mergeDefs(defsByClient)
	routes := u.options.Builder.Rebuild(ctx, defs, u.options.Table)
	u.options.Table.Replace(routes)
	u.options.Metrics.UpdateGauge(KeyRoutesTotal, float64(len(routes)))
	log.Infof("route table updated, %d routes from %d definitions", len(routes), len(defs))

	u.once.Do(func() { close(u.firstLoad) })
	return nil
}

// Run updates the table on start, and then on every trigger and poll
// interval, until the context is canceled.
func (u *Updater) Run(ctx context.Context) error {
	if err := u.Update(ctx); err != nil {
		log.Errorf("initial route update failed: %v", err)
	}

	var limiter *rate.Limiter
	if u.options.MinTriggerInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(u.options.MinTriggerInterval), 1)
	}

	var tick <-chan time.Time
	if u.options.PollInterval > 0 {
		t := time.NewTicker(u.options.PollInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-u.trigger:
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
		case <-tick:
		}

		if err := u.Update(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("route update failed: %v", err)
		}
	}
}
