package routing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/filtertest"
	"github.com/rgwgateway/rgw/metrics/metricstest"
	"github.com/rgwgateway/rgw/routing"
	"github.com/rgwgateway/rgw/routing/testdataclient"
)

type factory struct{}

func (factory) NewFilter(_ context.Context, name, _ string, _ []byte) (filters.Filter, error) {
	if name != "test" {
		return nil, errors.New("not found")
	}

	return &filtertest.Filter{}, nil
}

func (factory) NewPredicate(context.Context, string, string, []byte) (filters.Predicate, error) {
	return nil, errors.New("not found")
}

func def(id, path string) *routing.Definition {
	return &routing.Definition{Id: id, Path: path}
}

func newUpdater(table *routing.Table, mtr *metricstest.MockMetrics, poll time.Duration, clients ...routing.DataClient) *routing.Updater {
	return routing.NewUpdater(routing.UpdaterOptions{
		DataClients:   clients,
		Table:         table,
		Builder:       routing.NewBuilder(routing.BuilderOptions{Plugins: factory{}, Metrics: mtr}),
		PollInterval:  poll,
		RetryInterval: time.Millisecond,
		MaxRetries:    3,
		Metrics:       mtr,
	})
}

func routeIds(table *routing.Table) []string {
	var ids []string
	for _, r := range table.All() {
		ids = append(ids, r.Id)
	}

	return ids
}

func TestUpdateMergesClients(t *testing.T) {
	dc1 := testdataclient.New(def("a", "/a"), def("b", "/b"))
	dc2 := testdataclient.New(def("b", "/b2"), def("c", "/c"))

	table := routing.NewTable()
	mtr := &metricstest.MockMetrics{}
	u := newUpdater(table, mtr, 0, dc1, dc2)

	require.NoError(t, u.Update(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, routeIds(table))

	b, ok := table.Get("b")
	require.True(t, ok)
	assert.Equal(t, "/b2", b.Path)

	v, _ := mtr.Gauge(routing.KeyRoutesTotal)
	assert.Equal(t, 3.0, v)

	select {
	case <-u.FirstLoad():
	default:
		t.Error("first load not signaled")
	}
}

func TestUpdateDropsOnlyTheInvalidRoute(t *testing.T) {
	dc := testdataclient.New(
		def("a", "/a"),
		&routing.Definition{Id: "b", Path: "/b", Filters: []routing.PluginRef{{Name: "missing", Version: "1"}}},
		&routing.Definition{Id: "c", Path: "/c", Filters: []routing.PluginRef{{Name: "test", Version: "1"}}},
	)

	table := routing.NewTable()
	u := newUpdater(table, &metricstest.MockMetrics{}, 0, dc)

	require.NoError(t, u.Update(context.Background()))
	assert.Equal(t, []string{"a", "c"}, routeIds(table))
}

func filteredDef(id, path, config string) *routing.Definition {
	return &routing.Definition{
		Id:      id,
		Path:    path,
		Filters: []routing.PluginRef{{Name: "test", Version: "1", Config: []byte(config)}},
	}
}

func TestUpdateKeepsUnchangedRoutes(t *testing.T) {
	dc := testdataclient.New(
		filteredDef("a", "/a", `{"rate": 1}`),
		filteredDef("b", "/b", `{"rate": 1}`),
	)

	table := routing.NewTable()
	u := newUpdater(table, &metricstest.MockMetrics{}, 0, dc)
	require.NoError(t, u.Update(context.Background()))

	a1, _ := table.Get("a")
	b1, _ := table.Get("b")

	dc.Update(
		filteredDef("a", "/a", `{"rate": 1}`),
		filteredDef("b", "/b", `{"rate": 2}`),
		filteredDef("c", "/c", `{"rate": 1}`),
	)

	require.NoError(t, u.Update(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, routeIds(table))

	a2, _ := table.Get("a")
	assert.Same(t, a1, a2)
	assert.Same(t, a1.Filters[0], a2.Filters[0])

	b2, _ := table.Get("b")
	assert.NotSame(t, b1, b2)
	assert.NotSame(t, b1.Filters[0], b2.Filters[0])
	assert.Equal(t, `{"rate": 2}`, string(b2.Definition.Filters[0].Config))
}

func TestUpdateRetries(t *testing.T) {
	dc := testdataclient.New(def("a", "/a"))
	dc.FailNext(2)

	table := routing.NewTable()
	u := newUpdater(table, &metricstest.MockMetrics{}, 0, dc)

	require.NoError(t, u.Update(context.Background()))
	assert.Equal(t, 3, dc.Calls())
	assert.Equal(t, []string{"a"}, routeIds(table))
}

func TestFailedUpdateKeepsTheTable(t *testing.T) {
	dc := testdataclient.New(def("a", "/a"))
	table := routing.NewTable()
	mtr := &metricstest.MockMetrics{}
	u := newUpdater(table, mtr, 0, dc)
	require.NoError(t, u.Update(context.Background()))

	dc.Update(def("b", "/b"))
	dc.FailNext(-1)

	err := u.Update(context.Background())
	assert.ErrorIs(t, err, testdataclient.ErrFailing)
	assert.Equal(t, []string{"a"}, routeIds(table))

	n, _ := mtr.Counter(routing.KeyUpdateFailures)
	assert.Equal(t, int64(1), n)
}

func TestTriggerUpdates(t *testing.T) {
	dc := testdataclient.New(def("a", "/a"))
	table := routing.NewTable()
	u := newUpdater(table, &metricstest.MockMetrics{}, 0, dc)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, u.Run(ctx))
	}()

	defer func() {
		cancel()
		wg.Wait()
	}()

	<-u.FirstLoad()
	assert.Equal(t, []string{"a"}, routeIds(table))

	dc.Update(def("a", "/a"), def("b", "/b"))
	u.Trigger()
	u.Trigger()

	assert.Eventually(t, func() bool {
		return table.Len() == 2
	}, time.Second, time.Millisecond)
}

func TestPollUpdates(t *testing.T) {
	dc := testdataclient.New(def("a", "/a"))
	table := routing.NewTable()
	u := newUpdater(table, &metricstest.MockMetrics{}, 5*time.Millisecond, dc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		u.Run(ctx)
	}()

	defer func() {
		cancel()
		<-done
	}()

	<-u.FirstLoad()
	dc.Update(def("b", "/b"))

	assert.Eventually(t, func() bool {
		_, ok := table.Get("b")
		return ok
	}, time.Second, time.Millisecond)
}

func TestTriggersAreThrottled(t *testing.T) {
	dc := testdataclient.New(def("a", "/a"))
	table := routing.NewTable()
	u := routing.NewUpdater(routing.UpdaterOptions{
		DataClients:        []routing.DataClient{dc},
		Table:              table,
		Builder:            routing.NewBuilder(routing.BuilderOptions{Plugins: factory{}}),
		MinTriggerInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, u.Run(ctx))
	}()

	<-u.FirstLoad()
	u.Trigger()
	assert.Eventually(t, func() bool {
		return dc.Calls() == 2
	}, time.Second, time.Millisecond)

	dc.Update(def("b", "/b"))
	u.Trigger()
	assert.Never(t, func() bool {
		_, ok := table.Get("b")
		return ok
	}, 50*time.Millisecond, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop while waiting to update")
	}
}
