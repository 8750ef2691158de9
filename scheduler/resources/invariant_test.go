package resources

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/cloud/cluster/memory"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
)

var testModels = []string{"", "x86", "arm"}

func genJobs(codes []int) []Item {
	items := make([]Item, 0, len(codes))
	for i, v := range codes {
		budget := limits((v/4)%4, 1, 1)
		budget.CPUModel = testModels[(v/16)%3]
		items = append(items, Item{
			ID:         fmt.Sprintf("job%d", i),
			Priority:   domain.Priority((v / 48) % 4),
			Limits:     limits(1+v%4, 1, 1),
			TaskLimits: budget,
		})
	}
	return items
}

func mixedCluster() *memory.Directory {
	dir := memory.NewDirectory()
	both := nodeState(8, 16, 100)
	dir.SetNode("both", both)
	arm := nodeState(4, 16, 100)
	arm.CPUModel = "arm"
	arm.AvailableForJobs = false
	dir.SetNode("arm", arm)
	jobsOnly := nodeState(4, 16, 100)
	jobsOnly.AvailableForTasks = false
	dir.SetNode("jobs", jobsOnly)
	return dir
}

// taskCanRun checks, without the manager's own bookkeeping, that a task of
// the given budget fits somewhere once every admitted job holds its
// reservation.
func taskCanRun(nodes []Node, admitted map[string]Item, placement map[string]string, budget domain.ResourceLimits) bool {
	for _, n := range nodes {
		if !n.AvailableForTasks || n.Status == DISCONNECTED {
			continue
		}
		if budget.CPUModel != "" && budget.CPUModel != n.CPUModel {
			continue
		}
		cpu, ram, disk := n.AvailableCPU, n.AvailableRAM, n.AvailableDisk
		for id, item := range admitted {
			if placement[id] == n.Name {
				cpu -= item.Limits.CPUCores
				ram -= item.Limits.MemorySize
				disk -= item.Limits.DiskSize
			}
		}
		if cpu >= budget.CPUCores && ram >= budget.MemorySize && disk >= budget.DiskSize {
			return true
		}
	}
	return false
}

func Test_Schedule_TaskGuaranteeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every admitted job can run its largest task", prop.ForAll(
		func(codes []int) bool {
			m := NewManager(Config{MaxJobs: 10}, stats.NilStatsReceiver())
			if _, _, err := m.UpdateSystemStatus(context.Background(), mixedCluster()); err != nil {
				return false
			}

			pending := genJobs(codes)
			admitted := map[string]Item{}
			placement := map[string]string{}
			// admission in rounds, as the loop does
			for round := 0; round < 3; round++ {
				var rest []Item
				_, jobs := m.Schedule(nil, pending)
				byID := map[string]Item{}
				for _, item := range pending {
					byID[item.ID] = item
				}
				for _, a := range jobs {
					m.ClaimResources(byID[a.ID], a.Node, true)
					admitted[a.ID] = byID[a.ID]
					placement[a.ID] = a.Node
					delete(byID, a.ID)
				}
				for _, item := range pending {
					if _, ok := byID[item.ID]; ok {
						rest = append(rest, item)
					}
				}
				pending = rest
			}

			if !m.CheckInvariant() {
				return false
			}
			nodes := m.Nodes()
			for _, item := range admitted {
				if zero(item.TaskLimits) {
					continue
				}
				if !taskCanRun(nodes, admitted, placement, item.TaskLimits) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 191)),
	))

	properties.TestingRun(t)
}

func Test_CheckInvariant_GroupsBudgetsByModel(t *testing.T) {
	m, _ := setupTestManager(t, Config{}, map[string]cluster.NodeState{"node1": nodeState(4, 8, 100)})

	arm := limits(1, 1, 1)
	arm.CPUModel = "arm"
	m.ClaimResources(Item{ID: "job1", Limits: limits(1, 1, 1), TaskLimits: limits(2, 1, 1)}, "node1", true)
	assert.True(t, m.CheckInvariant())

	// nothing offers arm
	m.ClaimResources(Item{ID: "job2", Limits: limits(1, 1, 1), TaskLimits: arm}, "node1", true)
	assert.False(t, m.CheckInvariant())
	m.ReleaseResources("job2", "node1", true, 0)

	// the largest request per dimension counts, not the sum
	m.ClaimResources(Item{ID: "job3", Limits: limits(1, 1, 1), TaskLimits: limits(1, 6, 1)}, "node1", true)
	assert.True(t, m.CheckInvariant())
	m.ClaimResources(Item{ID: "job4", Limits: limits(1, 1, 1), TaskLimits: limits(0, 0, 0)}, "node1", true)
	assert.False(t, m.CheckInvariant())
}
