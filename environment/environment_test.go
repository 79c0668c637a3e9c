package environment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlexanderYastrebov/noleak"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	noleak.CheckMain(m)
}

func TestStatic(t *testing.T) {
	s := Static{"acme": {"host": "acme.example.org"}}

	env, err := s.GetEnvForOrg(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme.example.org", env["host"])

	env, err = s.GetEnvForOrg(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestMerge(t *testing.T) {
	base := Static{
		"acme":    {"host": "a", "port": "80"},
		"initech": {"host": "i"},
	}

	merged := base.Merge(Static{
		"acme":   {"port": "8080"},
		"globex": {"host": "g"},
	})

	if d := cmp.Diff(Static{
		"acme":    {"host": "a", "port": "8080"},
		"initech": {"host": "i"},
		"globex":  {"host": "g"},
	}, merged); d != "" {
		t.Error(d)
	}

	assert.Equal(t, "80", base["acme"]["port"])
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type envService struct {
	server *httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newEnvService(t *testing.T) *envService {
	s := &envService{}
	s.status.Store(http.StatusOK)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if r.URL.Path != "/env/acme" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if code := int(s.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}

		w.Write([]byte(`{"host": "acme.example.org", "call": "` + string(rune('0'+s.calls.Load())) + `"}`))
	}))

	t.Cleanup(s.server.Close)
	return s
}

func newTestHTTP(t *testing.T, s *envService, clock *fakeClock) *HTTP {
	h, err := NewHTTP(HTTPOptions{
		URL:    s.server.URL + "/",
		Client: s.server.Client(),
		TTL:    time.Minute,
		Now:    clock.Now,
	})

	require.NoError(t, err)
	return h
}

func TestHTTPCachesForTTL(t *testing.T) {
	s := newEnvService(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	h := newTestHTTP(t, s, clock)

	env, err := h.GetEnvForOrg(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme.example.org", env["host"])
	assert.Equal(t, "1", env["call"])

	clock.Advance(30 * time.Second)
	env, err = h.GetEnvForOrg(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "1", env["call"])
	assert.Equal(t, int32(1), s.calls.Load())

	clock.Advance(31 * time.Second)
	env, err = h.GetEnvForOrg(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "2", env["call"])
}

func TestHTTPUnknownOrg(t *testing.T) {
	s := newEnvService(t)
	h := newTestHTTP(t, s, &fakeClock{now: time.Unix(1_700_000_000, 0)})

	env, err := h.GetEnvForOrg(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, env)

	_, err = h.GetEnvForOrg(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.calls.Load())

	env, err = h.GetEnvForOrg(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, env)
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestHTTPStaleOnFailure(t *testing.T) {
	s := newEnvService(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	h := newTestHTTP(t, s, clock)

	_, err := h.GetEnvForOrg(context.Background(), "acme")
	require.NoError(t, err)

	s.status.Store(http.StatusInternalServerError)
	clock.Advance(2 * time.Minute)

	env, err := h.GetEnvForOrg(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "1", env["call"])
}

func TestHTTPFailure(t *testing.T) {
	s := newEnvService(t)
	s.status.Store(http.StatusServiceUnavailable)
	h := newTestHTTP(t, s, &fakeClock{now: time.Unix(1_700_000_000, 0)})

	_, err := h.GetEnvForOrg(context.Background(), "acme")
	assert.Error(t, err)
}

func TestHTTPInvalidOptions(t *testing.T) {
	_, err := NewHTTP(HTTPOptions{})
	assert.Error(t, err)

	_, err = NewHTTP(HTTPOptions{URL: "http://[::1"})
	assert.Error(t, err)
}
