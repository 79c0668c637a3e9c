/*
Package controlplane implements a DataClient pulling the full set of route
definitions from the control plane.

The definitions are fetched from <URL>/routes, as a JSON array of route
definitions. Optionally, the requests carry a bearer token.
*/
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw/routing"
)

const (
	routesPath     = "/routes"
	defaultTimeout = 10 * time.Second
)

var errResourceNotFound = errors.New("resource not found")

// Options configure the control plane client.
type Options struct {

	// URL of the control plane API.
	URL string

	// Client used for the requests. Defaults to a client with ten
	// seconds timeout.
	Client *http.Client

	// Token is sent as a bearer token when set.
	Token string

	// TokenFile, when set, is read before every request, and its
	// content is used as bearer token.
	TokenFile string
}

type Client struct {
	url       string
	client    *http.Client
	token     string
	tokenFile string
}

func New(o Options) (*Client, error) {
	if o.URL == "" {
		return nil, errors.New("missing control plane URL")
	}

	if _, err := url.Parse(o.URL); err != nil {
		return nil, fmt.Errorf("invalid control plane URL: %w", err)
	}

	if o.Client == nil {
		o.Client = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		url:       strings.TrimSuffix(o.URL, "/"),
		client:    o.Client,
		token:     o.Token,
		tokenFile: o.TokenFile,
	}, nil
}

func (c *Client) createRequest(ctx context.Context, uri string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+uri, nil)
	if err != nil {
		return nil, err
	}

	token := c.token
	if c.tokenFile != "" {
		b, err := os.ReadFile(c.tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token: %w", err)
		}

		token = strings.TrimSpace(string(b))
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, uri string, a interface{}) error {
	log.Tracef("making request to: %s", uri)

	req, err := c.createRequest(ctx, uri)
	if err != nil {
		return err
	}

	rsp, err := c.client.Do(req)
	if err != nil {
		log.Tracef("request to %s failed: %v", uri, err)
		return err
	}

	log.Tracef("request to %s succeeded", uri)
	defer rsp.Body.Close()

	if rsp.StatusCode == http.StatusNotFound {
		return errResourceNotFound
	}

	if rsp.StatusCode != http.StatusOK {
		log.Tracef("request failed, status: %d, %s", rsp.StatusCode, rsp.Status)
		return fmt.Errorf("request to %s failed, status: %d, %s", uri, rsp.StatusCode, rsp.Status)
	}

	b := bytes.NewBuffer(nil)
	if _, err = io.Copy(b, rsp.Body); err != nil {
		log.Tracef("reading response body failed: %v", err)
		return err
	}

	err = json.Unmarshal(b.Bytes(), a)
	if err != nil {
		log.Tracef("invalid response format: %v", err)
	}

	return err
}

// LoadAll returns the current route definitions of the control plane.
func (c *Client) LoadAll(ctx context.Context) ([]*routing.Definition, error) {
	var defs []*routing.Definition
	if err := c.getJSON(ctx, routesPath, &defs); err != nil {
		return nil, fmt.Errorf("failed to load routes from the control plane: %w", err)
	}

	valid := defs[:0]
	for _, d := range defs {
		if d != nil {
			valid = append(valid, d)
		}
	}

	log.Debugf("loaded %d route definitions from the control plane", len(valid))
	return valid, nil
}
