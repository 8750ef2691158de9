package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/scheduler/domain"
)

func Test_CheckResources_TaskExceedsJobBudget(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})
	job := Item{ID: "job1", Priority: domain.LOW, Limits: limits(1, 1, 1), TaskLimits: limits(2, 1, 1)}
	require.NoError(t, m.CheckResources(job, true, nil))
	m.ClaimResources(job, "node1", true)

	task := Item{ID: "task1", Limits: limits(3, 1, 1)}
	err := m.CheckResources(task, false, &job.TaskLimits)
	require.Error(t, err)
	short, ok := err.(*ShortfallError)
	require.True(t, ok)
	assert.Equal(t, []string{domain.DimCPUCores}, short.Dimensions)
	assert.Contains(t, err.Error(), "CPU cores")

	// the job keeps running
	_, running := m.Reserved("job1")
	assert.True(t, running)
	assert.True(t, m.CheckInvariant())
}

func Test_CheckResources_ModelMismatch(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})
	budget := limits(2, 2, 2)
	budget.CPUModel = "x86"
	task := limits(1, 1, 1)
	task.CPUModel = "arm"

	err := m.CheckResources(Item{ID: "task1", Limits: task}, false, &budget)
	require.Error(t, err)
	assert.Contains(t, err.(*ShortfallError).Dimensions, domain.DimCPUModel)

	task.CPUModel = ""
	assert.NoError(t, m.CheckResources(Item{ID: "task1", Limits: task}, false, &budget))
}

func Test_CheckResources_NoNodeLargeEnough(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{
		"node1": nodeState(4, 8, 100),
		"node2": nodeState(2, 16, 10),
	})

	err := m.CheckResources(Item{ID: "job1", Limits: limits(4, 16, 1)}, true, nil)
	require.Error(t, err)
	// node1 lacks only memory
	assert.Equal(t, []string{domain.DimMemory}, err.(*ShortfallError).Dimensions)

	err = m.CheckResources(Item{ID: "job1", Limits: limits(8, 32, 200)}, true, nil)
	require.Error(t, err)
	assert.ElementsMatch(t, []string{domain.DimCPUCores, domain.DimMemory, domain.DimDisk}, err.(*ShortfallError).Dimensions)

	// what is reserved now does not matter
	m.ClaimResources(Item{ID: "other", Limits: limits(4, 8, 100)}, "node1", true)
	assert.NoError(t, m.CheckResources(Item{ID: "job2", Limits: limits(4, 8, 100)}, true, nil))
}

func Test_CheckResources_NodeKinds(t *testing.T) {
	tasksOnly := nodeState(4, 8, 100)
	tasksOnly.AvailableForJobs = false
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": tasksOnly})

	err := m.CheckResources(Item{ID: "job1", Limits: limits(1, 1, 1)}, true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no node accepts jobs")
	assert.NoError(t, m.CheckResources(Item{ID: "task1", Limits: limits(1, 1, 1)}, false, nil))
}

func Test_CheckResources_JobAndTaskMustCoexist(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})

	// each fits alone, never together
	err := m.CheckResources(Item{ID: "job1", Limits: limits(3, 1, 1), TaskLimits: limits(2, 1, 1)}, true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at the same time")

	err = m.CheckResources(Item{ID: "job1", Limits: limits(1, 1, 1), TaskLimits: limits(8, 1, 1)}, true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tasks: ")

	assert.NoError(t, m.CheckResources(Item{ID: "job1", Limits: limits(2, 1, 1), TaskLimits: limits(2, 1, 1)}, true, nil))
}

func Test_CheckResources_InvalidLimits(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})
	err := m.CheckResources(Item{ID: "job1", Limits: limits(-1, 1, 1)}, true, nil)
	require.Error(t, err)
	_, isShortfall := err.(*ShortfallError)
	assert.False(t, isShortfall)
}
