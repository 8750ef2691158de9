package jobserver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
)

const (
	DefaultTimeout           = 10 * time.Second
	DefaultRetries           = 3
	DefaultRetryInterval     = 500 * time.Millisecond
	DefaultRequestsPerSecond = 50
	DefaultBurst             = 10

	// Prefix of every path the server exposes to schedulers.
	ServicePath = "/service"
)

type ClientConfig struct {
	// Address is the server's base URL, e.g. http://localhost:8998.
	Address string
	// Timeout bounds a single attempt of a request.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport error or a
	// 5xx response. Client errors are never retried.
	Retries       int
	RetryInterval time.Duration

	RequestsPerSecond float64
	Burst             int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	return c
}

// Client is a JobServer speaking JSON over HTTP.
type Client struct {
	config  ClientConfig
	base    string
	http    *http.Client
	limiter *rate.Limiter
	stat    stats.StatsReceiver
}

var _ JobServer = (*Client)(nil)

func NewClient(config ClientConfig, stat stats.StatsReceiver) (*Client, error) {
	u, err := url.Parse(config.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid job server address %q", config.Address)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("job server address %q must be an http or https URL", config.Address)
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	config = config.withDefaults()
	return &Client{
		config:  config,
		base:    strings.TrimSuffix(config.Address, "/") + ServicePath,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		stat:    stat.Scope("jobserver"),
	}, nil
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

func jsonRequest(method, path string, v interface{}) (request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return request{}, errors.Wrapf(err, "encoding body of %s %s", method, path)
	}
	return request{method: method, path: path, body: data, contentType: "application/json"}, nil
}

// do sends r, retrying with exponential backoff, and returns the response body.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	defer c.stat.Latency(stats.JobServerRequestLatency_ms).Time().Stop()
	var data []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(errors.Wrapf(err, "%s %s", r.method, r.path))
		}
		var err error
		data, err = c.attempt(ctx, r)
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryInterval
	notify := func(err error, wait time.Duration) {
		c.stat.Counter(stats.JobServerRequestRetriesCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"method": r.method,
				"path":   r.path,
				"err":    err,
				"wait":   wait,
			}).Warn("Request to job server failed, retrying")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.Retries)), ctx), notify)
	return data, err
}

func (c *Client) attempt(ctx context.Context, r request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.base+r.path, body)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrapf(err, "building %s %s", r.method, r.path))
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response of %s %s", r.method, r.path)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(errors.Wrapf(ErrNotFound, "%s %s", r.method, r.path))
	case resp.StatusCode >= 500:
		return nil, errors.Errorf("%s %s: %s: %s", r.method, r.path, resp.Status, snippet(data))
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(errors.Wrapf(ErrRejected, "%s %s: %s: %s", r.method, r.path, resp.Status, snippet(data)))
	}
	return data, nil
}

func snippet(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func jobPath(id string, rest ...string) string {
	return "/jobs/" + url.PathEscape(id) + suffix(rest)
}

func taskPath(id string, rest ...string) string {
	return "/tasks/" + url.PathEscape(id) + suffix(rest)
}

func suffix(rest []string) string {
	if len(rest) == 0 {
		return ""
	}
	return "/" + strings.Join(rest, "/")
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	data, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decoding response of GET %s", path)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, v interface{}) error {
	r, err := jsonRequest(method, path, v)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, r)
	return err
}

func (c *Client) PullJobConfig(ctx context.Context, id string) (*domain.JobConfiguration, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: jobPath(id, "configuration")})
	if err != nil {
		return nil, err
	}
	return domain.ParseJobConfiguration(data)
}

func (c *Client) PullTaskConfig(ctx context.Context, id string) (*domain.TaskDescription, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: taskPath(id, "description")})
	if err != nil {
		return nil, err
	}
	return domain.ParseTaskDescription(data)
}

type statusBody struct {
	Status interface{} `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) SubmitJobStatus(ctx context.Context, id string, status domain.Status) error {
	return c.send(ctx, http.MethodPatch, jobPath(id, "status"), statusBody{Status: status})
}

func (c *Client) SubmitJobError(ctx context.Context, id string, msg string) error {
	return c.send(ctx, http.MethodPatch, jobPath(id, "error"), errorBody{Error: msg})
}

func (c *Client) SubmitTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	return c.send(ctx, http.MethodPatch, taskPath(id, "status"), statusBody{Status: status})
}

func (c *Client) SubmitTaskError(ctx context.Context, id string, msg string) error {
	return c.send(ctx, http.MethodPatch, taskPath(id, "error"), errorBody{Error: msg})
}

// SubmitSolution posts the description as a multipart field. A kept
// working directory is uploaded as a zip archive, a plain file as is.
func (c *Client) SubmitSolution(ctx context.Context, id string, description map[string]interface{}, archivePath string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	desc, err := json.Marshal(description)
	if err != nil {
		return errors.Wrapf(ErrRejected, "encoding solution of task %s: %v", id, err)
	}
	if err := w.WriteField("description", string(desc)); err != nil {
		return errors.Wrap(err, "writing solution description")
	}
	if archivePath != "" {
		if err := writeArchive(w, archivePath); err != nil {
			return errors.Wrapf(ErrRejected, "attaching archive of task %s: %v", id, err)
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "closing solution upload")
	}
	_, err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        taskPath(id, "solution"),
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	})
	return err
}

func writeArchive(w *multipart.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		part, err := w.CreateFormFile("archive", filepath.Base(path))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(part, f)
		return err
	}

	part, err := w.CreateFormFile("archive", filepath.Base(path)+".zip")
	if err != nil {
		return err
	}
	zw := zip.NewWriter(part)
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		dst, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

func (c *Client) SubmitNodes(ctx context.Context, nodes []domain.NodeConfiguration) error {
	if nodes == nil {
		nodes = []domain.NodeConfiguration{}
	}
	return c.send(ctx, http.MethodPost, "/nodes", nodes)
}

func (c *Client) SubmitTools(ctx context.Context, tools []domain.Tool) error {
	if tools == nil {
		tools = []domain.Tool{}
	}
	return c.send(ctx, http.MethodPost, "/tools", tools)
}

func (c *Client) GetAllJobs(ctx context.Context) (map[string]domain.Status, error) {
	jobs := map[string]domain.Status{}
	if err := c.get(ctx, "/jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) GetAllTasks(ctx context.Context) (map[string]domain.TaskStatus, error) {
	tasks := map[string]domain.TaskStatus{}
	if err := c.get(ctx, "/tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetJobTasks(ctx context.Context, jobID string) (map[string]domain.TaskStatus, error) {
	tasks := map[string]domain.TaskStatus{}
	if err := c.get(ctx, jobPath(jobID, "tasks"), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: jobPath(id, "cancel")})
	return err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: taskPath(id)})
	return err
}

func (c *Client) String() string {
	return fmt.Sprintf("jobserver.Client{%s}", c.config.Address)
}
