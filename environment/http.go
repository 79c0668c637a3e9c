package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL       = time.Minute
	DefaultCacheSize = 1024
	DefaultTimeout   = 3 * time.Second

	maxBodySize = 1 << 20
)

// HTTPOptions configure the HTTP provider.
type HTTPOptions struct {

	// URL of the environment service. The variables of an
	// organization are fetched from <URL>/env/<key>, as a JSON
	// object of strings.
	URL string

	// Client used for the requests. Defaults to a client with
	// DefaultTimeout.
	Client *http.Client

	// TTL of the cached environments. Defaults to DefaultTTL.
	TTL time.Duration

	// CacheSize is the maximum number of cached organizations.
	// Defaults to DefaultCacheSize.
	CacheSize int

	// Now is used to check the age of the cached values. Defaults to
	// time.Now.
	Now func() time.Time
}

type cacheEntry struct {
	env     map[string]string
	fetched time.Time
}

// HTTP fetches the environments from a remote service, and caches them
// for a TTL. When the refresh of an expired entry fails, the stale entry
// is returned.
type HTTP struct {
	url    string
	client *http.Client
	ttl    time.Duration
	now    func() time.Time
	cache  *lru.Cache[string, cacheEntry]
	group  singleflight.Group
}

func NewHTTP(o HTTPOptions) (*HTTP, error) {
	if o.URL == "" {
		return nil, fmt.Errorf("missing environment service URL")
	}

	if _, err := url.Parse(o.URL); err != nil {
		return nil, fmt.Errorf("invalid environment service URL: %w", err)
	}

	if o.Client == nil {
		o.Client = &http.Client{Timeout: DefaultTimeout}
	}

	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}

	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	cache, err := lru.New[string, cacheEntry](o.CacheSize)
	if err != nil {
		return nil, err
	}

	return &HTTP{
		url:    strings.TrimSuffix(o.URL, "/"),
		client: o.Client,
		ttl:    o.TTL,
		now:    o.Now,
		cache:  cache,
	}, nil
}

func (h *HTTP) fetch(ctx context.Context, key string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+"/env/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}

	rsp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer rsp.Body.Close()
	switch {
	case rsp.StatusCode == http.StatusNotFound:
		return map[string]string{}, nil
	case rsp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("environment request for %s failed, status: %d", key, rsp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(rsp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("invalid environment for %s: %w", key, err)
	}

	return env, nil
}

func (h *HTTP) GetEnvForOrg(ctx context.Context, key string) (map[string]string, error) {
	if key == "" {
		return nil, nil
	}

	cached, ok := h.cache.Get(key)
	if ok && h.now().Sub(cached.fetched) < h.ttl {
		return cached.env, nil
	}

	// the shared fetch must not be canceled by the first caller alone
	v, err, _ := h.group.Do(key, func() (interface{}, error) {
		env, err := h.fetch(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}

		h.cache.Add(key, cacheEntry{env: env, fetched: h.now()})
		return env, nil
	})

	if err != nil {
		if ok {
			log.Warnf("Failed to refresh the environment of %s, using stale values: %v", key, err)
			return cached.env, nil
		}

		return nil, err
	}

	return v.(map[string]string), nil
}
