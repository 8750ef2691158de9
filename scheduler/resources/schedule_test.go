package resources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/cloud/cluster/memory"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
)

func claimAll(m *Manager, items []Item, assignments []Assignment, isJob bool) {
	byID := make(map[string]Item)
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, a := range assignments {
		m.ClaimResources(byID[a.ID], a.Node, isJob)
	}
}

func Test_Schedule_SingleJobKeepsTaskBudget(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})

	job := Item{ID: "job1", Priority: domain.LOW, Limits: limits(2, 4, 10), TaskLimits: limits(1, 1, 1)}
	tasks, jobs := m.Schedule(nil, []Item{job})
	assert.Empty(t, tasks)
	require.Equal(t, []Assignment{{ID: "job1", Node: "node1"}}, jobs)

	m.ClaimResources(job, "node1", true)
	n, _ := m.NodeInfo("node1")
	assert.Equal(t, 2, n.ReservedCPU)
	assert.Equal(t, 4*domain.GiB, n.ReservedRAM)
	assert.Equal(t, 10*domain.GiB, n.ReservedDisk)
	assert.True(t, m.CheckInvariant())
	assert.Equal(t, HEALTHY, n.Status)
}

func Test_Schedule_SecondFullNodeJobWaits(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})

	job1 := Item{ID: "job1", Priority: domain.LOW, Limits: limits(4, 1, 1)}
	job2 := Item{ID: "job2", Priority: domain.LOW, Limits: limits(4, 1, 1)}
	pending := []Item{job1, job2}

	_, jobs := m.Schedule(nil, pending)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job1", jobs[0].ID)
	m.ClaimResources(job1, jobs[0].Node, true)

	_, jobs = m.Schedule(nil, []Item{job2})
	assert.Empty(t, jobs)

	m.ReleaseResources("job1", "node1", true, 0)
	_, jobs = m.Schedule(nil, []Item{job2})
	assert.Equal(t, []Assignment{{ID: "job2", Node: "node1"}}, jobs)
}

func Test_Schedule_PriorityOrder(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})

	pending := []Item{
		{ID: "idle", Priority: domain.IDLE, Limits: limits(4, 1, 1)},
		{ID: "low", Priority: domain.LOW, Limits: limits(4, 1, 1)},
		{ID: "high", Priority: domain.HIGH, Limits: limits(4, 1, 1)},
		{ID: "urgent", Priority: domain.URGENT, Limits: limits(4, 1, 1)},
	}
	_, jobs := m.Schedule(nil, pending)
	assert.Equal(t, []Assignment{{ID: "urgent", Node: "node1"}}, jobs)

	pending = []Item{
		{ID: "high", Priority: domain.HIGH, Limits: limits(4, 1, 1)},
		{ID: "urgent1", Priority: domain.URGENT, Limits: limits(4, 1, 1)},
		{ID: "urgent2", Priority: domain.URGENT, Limits: limits(4, 1, 1)},
	}
	_, jobs = m.Schedule(nil, pending)
	require.Len(t, jobs, 1)
	assert.Contains(t, []string{"urgent1", "urgent2"}, jobs[0].ID)
}

func Test_Schedule_LowerPriorityWaitsForRunningJob(t *testing.T) {
	m, _ := setupTestManager(t, Config{MaxJobs: 3}, map[string]cluster.NodeState{"node1": nodeState(8, 8, 100)})
	m.ClaimResources(Item{ID: "running", Priority: domain.HIGH, Limits: limits(1, 1, 1)}, "node1", true)

	pending := []Item{
		{ID: "low", Priority: domain.LOW, Limits: limits(1, 1, 1)},
		{ID: "high", Priority: domain.HIGH, Limits: limits(1, 1, 1)},
	}
	_, jobs := m.Schedule(nil, pending)
	assert.Equal(t, []Assignment{{ID: "high", Node: "node1"}}, jobs)
}

func Test_Schedule_MaxJobs(t *testing.T) {
	m, _ := setupTestManager(t, Config{MaxJobs: 2}, map[string]cluster.NodeState{"node1": nodeState(8, 8, 100)})
	m.ClaimResources(Item{ID: "running", Priority: domain.LOW, Limits: limits(1, 1, 1)}, "node1", true)

	pending := []Item{
		{ID: "job1", Priority: domain.LOW, Limits: limits(1, 1, 1)},
		{ID: "job2", Priority: domain.HIGH, Limits: limits(1, 1, 1)},
	}
	_, jobs := m.Schedule(nil, pending)
	assert.Equal(t, []Assignment{{ID: "job2", Node: "node1"}}, jobs)
}

func Test_Schedule_JobDeferredToKeepTaskBudget(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	dir := memory.NewDirectory()
	dir.SetNode("node1", nodeState(4, 8, 100))
	m := NewManager(Config{}, stat)
	_, _, err := m.UpdateSystemStatus(context.Background(), dir)
	require.NoError(t, err)

	job1 := Item{ID: "job1", Priority: domain.LOW, Limits: limits(2, 1, 1), TaskLimits: limits(2, 1, 1)}
	m.ClaimResources(job1, "node1", true)

	// two free cores are promised to the tasks of job1
	job2 := Item{ID: "job2", Priority: domain.LOW, Limits: limits(2, 1, 1), TaskLimits: limits(1, 1, 1)}
	_, jobs := m.Schedule(nil, []Item{job2})
	assert.Empty(t, jobs)
	assert.True(t, m.CheckInvariant())

	// tasks are not bound by the job guarantee
	task := Item{ID: "task1", Priority: domain.LOW, Limits: limits(2, 1, 1)}
	tasks, _ := m.Schedule([]Item{task}, nil)
	assert.Equal(t, []Assignment{{ID: "task1", Node: "node1"}}, tasks)

	stats.VerifyStats("", stat, t, map[string]stats.Rule{
		"resources/" + stats.ResourceInvariantRejectionsCounter: {Checker: stats.Int64EqTest, Value: 1},
	})
}

func Test_Schedule_TaskPool(t *testing.T) {
	load := 0
	m, _ := setupTestManager(t, Config{MaxProcesses: 2, ExternalLoad: func() int { return load }},
		map[string]cluster.NodeState{"node1": nodeState(8, 8, 100)})

	pending := []Item{
		{ID: "task1", Priority: domain.IDLE, Limits: limits(1, 1, 1)},
		{ID: "task2", Priority: domain.LOW, Limits: limits(1, 1, 1)},
		{ID: "task3", Priority: domain.HIGH, Limits: limits(1, 1, 1)},
	}
	tasks, _ := m.Schedule(pending, nil)
	assert.Equal(t, []Assignment{{ID: "task3", Node: "node1"}, {ID: "task2", Node: "node1"}}, tasks)

	load = 1
	tasks, _ = m.Schedule(pending, nil)
	assert.Equal(t, []Assignment{{ID: "task3", Node: "node1"}}, tasks)

	load = 5
	tasks, _ = m.Schedule(pending, nil)
	assert.Empty(t, tasks)
}

func Test_Schedule_TasksShareWorkingCopy(t *testing.T) {
	m, _ := setupTestManager(t, Config{MaxProcesses: 10}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})

	pending := []Item{
		{ID: "task1", Limits: limits(2, 1, 1)},
		{ID: "task2", Limits: limits(2, 1, 1)},
		{ID: "task3", Limits: limits(2, 1, 1)},
	}
	tasks, _ := m.Schedule(pending, nil)
	assert.Len(t, tasks, 2)
	claimAll(m, pending, tasks, false)
	n, _ := m.NodeInfo("node1")
	assert.Equal(t, 4, n.ReservedCPU)
}

func Test_Schedule_MostLoadedNodeFirst(t *testing.T) {
	m, _ := setupTestManager(t, Config{MaxProcesses: 10}, map[string]cluster.NodeState{
		"big":   nodeState(8, 8, 100),
		"small": nodeState(4, 8, 100),
	})

	tasks, _ := m.Schedule([]Item{{ID: "task1", Limits: limits(1, 1, 1)}}, nil)
	assert.Equal(t, []Assignment{{ID: "task1", Node: "small"}}, tasks)

	tasks, _ = m.Schedule([]Item{{ID: "task2", Limits: limits(6, 1, 1)}}, nil)
	assert.Equal(t, []Assignment{{ID: "task2", Node: "big"}}, tasks)
}

func Test_Schedule_NodeKindAndModel(t *testing.T) {
	jobsOnly := nodeState(4, 8, 100)
	jobsOnly.AvailableForTasks = false
	arm := nodeState(4, 8, 100)
	arm.CPUModel = "arm"
	arm.AvailableForJobs = false
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"jobs": jobsOnly, "arm": arm})

	armLimits := limits(1, 1, 1)
	armLimits.CPUModel = "arm"
	x86Limits := limits(1, 1, 1)
	x86Limits.CPUModel = "x86"

	tasks, jobs := m.Schedule(
		[]Item{{ID: "x86task", Limits: x86Limits}, {ID: "armtask", Limits: armLimits}},
		[]Item{{ID: "armjob", Limits: armLimits}, {ID: "job", Limits: limits(1, 1, 1), TaskLimits: armLimits}})
	assert.Equal(t, []Assignment{{ID: "armtask", Node: "arm"}}, tasks)
	assert.Equal(t, []Assignment{{ID: "job", Node: "jobs"}}, jobs)
}

func Test_Schedule_RejectsRunningItems(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})
	job := Item{ID: "job1", Limits: limits(1, 1, 1)}
	m.ClaimResources(job, "node1", true)
	assert.NotNil(t, invariantPanic(func() { m.Schedule(nil, []Item{job}) }))
}

func Test_Schedule_NothingBeforeFirstRefresh(t *testing.T) {
	m := NewManager(Config{}, nil)
	assert.False(t, m.Initialized())
	tasks, jobs := m.Schedule([]Item{{ID: "task1"}}, []Item{{ID: "job1"}})
	assert.Empty(t, tasks)
	assert.Empty(t, jobs)
}
