package jobserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
)

func testJob(id string) *domain.JobConfiguration {
	return &domain.JobConfiguration{
		ID:         id,
		Priority:   domain.HIGH,
		Limits:     domain.ResourceLimits{CPUCores: 2, MemorySize: 4 * domain.GiB, DiskSize: 10 * domain.GiB},
		TaskLimits: domain.ResourceLimits{CPUModel: "x86", CPUCores: 1, MemorySize: domain.GiB, DiskSize: domain.GiB},
	}
}

func testTask(id, jobID string) *domain.TaskDescription {
	return &domain.TaskDescription{
		ID:       id,
		JobID:    jobID,
		Priority: domain.LOW,
		Limits:   domain.ResourceLimits{CPUCores: 1, MemorySize: domain.GiB, DiskSize: domain.GiB},
	}
}

func setupClient(t *testing.T, h http.Handler, retries int) (*Client, stats.StatsReceiver) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	stat := stats.DefaultStatsReceiver()
	c, err := NewClient(ClientConfig{
		Address:       srv.URL,
		Timeout:       time.Second,
		Retries:       retries,
		RetryInterval: time.Millisecond,
	}, stat)
	require.NoError(t, err)
	return c, stat
}

func Test_Client_RoundTrip(t *testing.T) {
	mem := NewMemoryServer()
	mem.AddJob(testJob("job1"))
	mem.AddTask(testTask("task1", "job1"))
	mem.AddTask(testTask("task2", "other"))
	c, _ := setupClient(t, NewHandler(mem), 0)
	ctx := context.Background()

	job, err := c.PullJobConfig(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, testJob("job1"), job)

	task, err := c.PullTaskConfig(ctx, "task1")
	require.NoError(t, err)
	assert.Equal(t, testTask("task1", "job1"), task)

	require.NoError(t, c.SubmitJobStatus(ctx, "job1", domain.Processing))
	require.NoError(t, c.SubmitTaskStatus(ctx, "task1", domain.TaskProcessing))
	require.NoError(t, c.SubmitTaskError(ctx, "task2", "not enough memory"))

	jobs, err := c.GetAllJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Status{"job1": domain.Processing}, jobs)

	tasks, err := c.GetAllTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.TaskStatus{"task1": domain.TaskProcessing, "task2": domain.TaskError}, tasks)

	tasks, err = c.GetJobTasks(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.TaskStatus{"task1": domain.TaskProcessing}, tasks)

	require.NoError(t, c.CancelJob(ctx, "job1"))
	st, _ := mem.JobStatus("job1")
	assert.Equal(t, domain.Cancelling, st)

	require.NoError(t, c.SubmitJobError(ctx, "job1", "cancelled by resource shortage"))
	st, _ = mem.JobStatus("job1")
	assert.Equal(t, domain.Failed, st)

	require.NoError(t, c.DeleteTask(ctx, "task2"))
	_, ok := mem.TaskStatus("task2")
	assert.False(t, ok)

	subs := mem.SubmissionsFor("task2")
	require.Len(t, subs, 1)
	assert.Equal(t, "not enough memory", subs[0].Error)
}

func Test_Client_NodesAndTools(t *testing.T) {
	mem := NewMemoryServer()
	c, _ := setupClient(t, NewHandler(mem), 0)
	ctx := context.Background()

	nodes := []domain.NodeConfiguration{{
		Name: "node1", CPUModel: "x86", CPUCores: 4, RAMGB: 8, DiskGB: 100,
		Workload: domain.NodeWorkload{ReservedCPU: 2, RunningJobs: 1, AvailableForJobs: true, AvailableForTasks: true},
	}}
	require.NoError(t, c.SubmitNodes(ctx, nodes))
	got, calls := mem.Nodes()
	assert.Equal(t, nodes, got)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.SubmitTools(ctx, []domain.Tool{{Name: "cpachecker", Version: "2.3"}}))
	tools, _ := mem.Tools()
	assert.Equal(t, []domain.Tool{{Name: "cpachecker", Version: "2.3"}}, tools)
}

func Test_Client_SubmitSolution(t *testing.T) {
	mem := NewMemoryServer()
	c, _ := setupClient(t, NewHandler(mem), 0)
	ctx := context.Background()

	require.NoError(t, c.SubmitSolution(ctx, "task1", map[string]interface{}{"verdict": "safe"}, ""))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output.log"), []byte("verification done\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "witness"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "witness", "w.graphml"), []byte("<graphml/>"), 0644))
	require.NoError(t, c.SubmitSolution(ctx, "task2", map[string]interface{}{"verdict": "unsafe"}, dir))

	subs := mem.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, "safe", subs[0].Solution["verdict"])
	assert.Empty(t, subs[0].ArchivePath)
	assert.Equal(t, "unsafe", subs[1].Solution["verdict"])
	assert.True(t, subs[1].ArchiveSize > 0, "archive was uploaded")

	err := c.SubmitSolution(ctx, "task3", nil, filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, IsRejected(err), "a missing archive never uploads")
}

func Test_Client_NotFound(t *testing.T) {
	c, stat := setupClient(t, NewHandler(NewMemoryServer()), 3)

	_, err := c.PullJobConfig(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	stats.VerifyStats("NotFound", stat, t, map[string]stats.Rule{
		"jobserver/" + stats.JobServerRequestRetriesCounter: {Checker: stats.DoesNotExistTest},
	})
}

func Test_Client_RetriesServerErrors(t *testing.T) {
	var calls int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"job1": "2"}`))
	})
	c, stat := setupClient(t, h, 3)

	jobs, err := c.GetAllJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Processing, jobs["job1"])
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	stats.VerifyStats("Retries", stat, t, map[string]stats.Rule{
		"jobserver/" + stats.JobServerRequestRetriesCounter: {Checker: stats.Int64EqTest, Value: 2},
	})
}

func Test_Client_GivesUp(t *testing.T) {
	var calls int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	})
	c, _ := setupClient(t, h, 2)
	err := c.SubmitJobStatus(context.Background(), "job1", domain.Solved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func Test_Client_NoRetryOnClientError(t *testing.T) {
	var calls int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad status", http.StatusBadRequest)
	})
	c, _ := setupClient(t, h, 3)
	err := c.SubmitTaskStatus(context.Background(), "task1", domain.TaskFinished)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsRejected(err))
	assert.Contains(t, err.Error(), "400")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func Test_Client_InvalidConfiguration(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"identifier": "job1", "priority": "HIGH", "resource limits": {"number of CPU cores": 1}}`))
	})
	c, _ := setupClient(t, h, 0)
	_, err := c.PullJobConfig(context.Background(), "job1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrIncompleteRestriction, errors.Cause(err))
}

func Test_Client_ContextCancelled(t *testing.T) {
	c, _ := setupClient(t, NewHandler(NewMemoryServer()), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetAllJobs(ctx)
	assert.Error(t, err)
}

func Test_NewClient_BadAddress(t *testing.T) {
	_, err := NewClient(ClientConfig{Address: "localhost:8998"}, nil)
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{Address: "http://localhost:8998"}, nil)
	assert.NoError(t, err)
}
