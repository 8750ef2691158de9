// Package consul reads node facts from a consul-style key-value HTTP API.
// Each node stores its JSON NodeState under <prefix>/<node name>.
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/cloud/cluster"
)

// DefaultHttpTries bounds retries of one read; the caller's context bounds its duration.
const DefaultHttpTries = 3

const DefaultPrefix = "states"

// Client is the part of an HTTP client used here.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

func MakePesterClient(tries int) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = tries
	client.LogHook = func(e pester.ErrEntry) {
		log.WithFields(log.Fields{"url": e.URL, "attempt": e.Attempt, "err": e.Err}).Warn("retrying node directory request")
	}
	return client
}

type directory struct {
	root   string
	prefix string
	client Client
}

// NewDirectory reads keys under prefix from the KV API at root (e.g. http://localhost:8500).
func NewDirectory(root, prefix string) cluster.Directory {
	return NewCustomDirectory(root, prefix, MakePesterClient(DefaultHttpTries))
}

func NewCustomDirectory(root, prefix string, client Client) cluster.Directory {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &directory{
		root:   strings.TrimSuffix(root, "/"),
		prefix: strings.Trim(prefix, "/"),
		client: client,
	}
}

func (d *directory) ListNodes(ctx context.Context) ([]string, error) {
	var keys []string
	found, err := d.get(ctx, fmt.Sprintf("/v1/kv/%s/?keys=true&separator=/", d.prefix), &keys)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var names []string
	for _, k := range keys {
		name := strings.TrimPrefix(k, d.prefix+"/")
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *directory) GetNodeState(ctx context.Context, name string) (cluster.NodeState, error) {
	var st cluster.NodeState
	found, err := d.get(ctx, fmt.Sprintf("/v1/kv/%s/%s?raw", d.prefix, url.PathEscape(name)), &st)
	if err != nil {
		return st, err
	}
	if !found {
		return st, errors.Errorf("node %s has no state", name)
	}
	return st, nil
}

// get decodes the JSON body into out. A 404 is reported as not found.
func (d *directory) get(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.root+path, nil)
	if err != nil {
		return false, errors.Wrap(err, "building directory request")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, errors.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, errors.Wrapf(err, "decoding %s", path)
	}
	return true, nil
}
