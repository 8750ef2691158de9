package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
	"github.com/verisched/verisched/scheduler/server"
)

func setupMemory() *jobserver.MemoryServer {
	mem := jobserver.NewMemoryServer()
	limits := domain.ResourceLimits{CPUCores: 1, MemorySize: domain.GiB, DiskSize: domain.GiB}
	mem.AddJob(&domain.JobConfiguration{ID: "job1", Limits: limits, TaskLimits: limits})
	mem.AddTask(&domain.TaskDescription{ID: "task1", JobID: "job1", Limits: limits})
	mem.AddTask(&domain.TaskDescription{ID: "task2", JobID: "job1", Limits: limits})
	return mem
}

func execute(t *testing.T, js jobserver.JobServer, args ...string) (string, error) {
	c := NewSimpleCLIClient(js)
	out := &bytes.Buffer{}
	c.RootCmd.SetOut(out)
	c.RootCmd.SetErr(out)
	c.RootCmd.SetArgs(args)
	err := c.Exec()
	return out.String(), err
}

func TestJobs(t *testing.T) {
	out, err := execute(t, setupMemory(), "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "job1")
	assert.Contains(t, out, domain.Pending.String())
}

func TestJobsJSON(t *testing.T) {
	out, err := execute(t, setupMemory(), "jobs", "-o", "json")
	require.NoError(t, err)
	var jobs map[string]domain.Status
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	assert.Equal(t, map[string]domain.Status{"job1": domain.Pending}, jobs)
}

func TestTasks(t *testing.T) {
	out, err := execute(t, setupMemory(), "tasks", "job1")
	require.NoError(t, err)
	assert.Contains(t, out, "task1")
	assert.Contains(t, out, "task2")

	_, err = execute(t, setupMemory(), "tasks")
	assert.Error(t, err)
}

func TestCancelAndDelete(t *testing.T) {
	mem := setupMemory()
	out, err := execute(t, mem, "cancel", "job1")
	require.NoError(t, err)
	assert.Contains(t, out, "job1")
	st, _ := mem.JobStatus("job1")
	assert.Equal(t, domain.Cancelling, st)

	_, err = execute(t, mem, "delete-task", "task2")
	require.NoError(t, err)
	_, ok := mem.TaskStatus("task2")
	assert.False(t, ok)

	_, err = execute(t, mem, "delete-task", "task2")
	assert.Error(t, err)
}

func TestBadOutputFormat(t *testing.T) {
	_, err := execute(t, setupMemory(), "jobs", "-o", "xml")
	assert.Error(t, err)
}

func TestNodes(t *testing.T) {
	nodes := []server.NodeView{{Name: "node1", Status: "HEALTHY", CPUModel: "x86", CPUs: 4, AvailableCPUs: 4, ReservedCPUs: 3}}
	admin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != server.NodesPath {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(nodes)
	}))
	defer admin.Close()

	out, err := execute(t, setupMemory(), "nodes", "--admin", admin.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "node1")
	assert.Contains(t, out, "HEALTHY")
	assert.Contains(t, out, "3/4")

	out, err = execute(t, setupMemory(), "nodes", "--admin", admin.URL, "-o", "json")
	require.NoError(t, err)
	var got []server.NodeView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, nodes, got)
}
