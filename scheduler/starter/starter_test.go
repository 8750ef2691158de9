package starter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/config"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
	"github.com/verisched/verisched/scheduler/reports"
)

func memoryConfig(t *testing.T) *config.Config {
	c, err := config.Load("local.memory", "")
	require.NoError(t, err)
	c.Scheduler.TickRate = 5 * time.Millisecond
	c.Runner.WorkDir = t.TempDir()
	solve := []string{"sh", "-c", `echo '{"answer": 42}' > result.json`}
	c.Runner.JobCommand = solve
	c.Runner.TaskCommand = solve
	c.Admin.Addr = "localhost:0"
	return c
}

func limits(cores int, gb int64) domain.ResourceLimits {
	return domain.ResourceLimits{CPUCores: cores, MemorySize: gb * domain.GiB, DiskSize: gb * domain.GiB}
}

func TestBuildMemory(t *testing.T) {
	svc, err := Build(memoryConfig(t), stats.NilStatsReceiver())
	require.NoError(t, err)
	defer svc.Close()
	assert.NotNil(t, svc.Memory)
	assert.Equal(t, svc.Memory, svc.JobServer)
	assert.NotNil(t, svc.Scheduler)

	names, err := svc.Directory.ListNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"node1"}, names)
}

func TestHostLoadShrinksPool(t *testing.T) {
	svc, err := Build(memoryConfig(t), nil)
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.resourcesConfig().ExternalLoad)

	svc.Config.Scheduler.LimitByHostLoad = true
	rc := svc.resourcesConfig()
	require.NotNil(t, rc.ExternalLoad)
	assert.GreaterOrEqual(t, rc.ExternalLoad(), 0)
	assert.Equal(t, svc.Config.Scheduler.MaxProcesses, rc.MaxProcesses)
}

func TestBuildHTTPAndBolt(t *testing.T) {
	c := memoryConfig(t)
	c.JobServer.Type = config.JobServerHTTP
	c.JobServer.Address = "http://localhost:8998"
	c.Reports.Type = config.ReportsBolt
	c.Reports.Path = filepath.Join(t.TempDir(), "reports.db")

	svc, err := Build(c, nil)
	require.NoError(t, err)
	assert.Nil(t, svc.Memory)
	assert.IsType(t, &jobserver.Client{}, svc.JobServer)
	assert.IsType(t, &reports.BoltStore{}, svc.Store)
	svc.Close()
	svc.Close()
}

func TestBuildRejectsUnknownTypes(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"jobserver": func(c *config.Config) { c.JobServer.Type = "thrift" },
		"directory": func(c *config.Config) { c.Directory.Type = "zookeeper" },
		"runner":    func(c *config.Config) { c.Runner.Type = "remote" },
		"reports":   func(c *config.Config) { c.Reports.Type = "sql" },
	}
	for name, mutate := range cases {
		c := memoryConfig(t)
		mutate(c)
		svc, err := Build(c, nil)
		assert.Error(t, err, name)
		assert.Nil(t, svc, name)
	}
}

func TestRunSolvesJobAndTask(t *testing.T) {
	svc, err := Build(memoryConfig(t), nil)
	require.NoError(t, err)
	mem := svc.Memory

	mem.AddJob(&domain.JobConfiguration{ID: "job1", Priority: domain.HIGH, Limits: limits(1, 1), TaskLimits: limits(1, 1)})
	mem.AddTask(&domain.TaskDescription{ID: "task1", JobID: "other", Priority: domain.LOW, Limits: limits(1, 1)})
	svc.Scheduler.Notify(domain.JobNotification("job1", domain.Pending))
	svc.Scheduler.Notify(domain.TaskNotification("task1", domain.TaskPending))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		js, _ := mem.JobStatus("job1")
		ts, _ := mem.TaskStatus("task1")
		return js == domain.Solved && ts == domain.TaskFinished
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	var solved bool
	for _, s := range mem.SubmissionsFor("task1") {
		if s.Solution != nil {
			assert.Equal(t, 42.0, s.Solution["answer"])
			solved = true
		}
	}
	assert.True(t, solved)
}
