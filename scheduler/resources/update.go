package resources

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
)

// cancellation collects items to cancel in selection order.
type cancellation struct {
	ids   map[string]bool
	jobs  []string
	tasks []string
}

func (c *cancellation) add(id string, isJob bool) {
	if c.ids[id] {
		return
	}
	c.ids[id] = true
	if isJob {
		c.jobs = append(c.jobs, id)
	} else {
		c.tasks = append(c.tasks, id)
	}
}

// UpdateSystemStatus reads fresh node facts from dir and returns the running
// jobs and tasks that must be cancelled because of them: items on nodes that
// left the directory or stopped accepting their kind, items that no longer
// fit on their node, and jobs whose tasks could no longer be guaranteed
// resources. The returned items still hold their reservations; the caller
// cancels and releases them.
//
// If dir cannot be read completely nothing changes and the error is returned.
func (m *Manager) UpdateSystemStatus(ctx context.Context, dir cluster.Directory) (jobs, tasks []string, err error) {
	defer m.stat.Latency(stats.ResourceRefreshLatency_ms).Time().Stop()

	states, err := cluster.FetchAll(ctx, dir)
	if err != nil {
		m.stat.Counter(stats.ResourceRefreshFailuresCounter).Inc(1)
		return nil, nil, err
	}

	c := &cancellation{ids: make(map[string]bool)}
	lost := false

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := states[name]
		n, ok := m.nodes[name]
		if !ok {
			n = newNode(name)
			m.nodes[name] = n
			log.WithFields(log.Fields{"node": name, "model": st.CPUModel}).Info("new node")
		}
		if n.Status == DISCONNECTED {
			log.WithFields(log.Fields{"node": name}).Info("node reconnected")
			n.Status = HEALTHY
		}
		hadJobs, hadTasks, oldModel := n.AvailableForJobs, n.AvailableForTasks, n.CPUModel
		if n.apply(st) {
			lost = true
		}
		if hadJobs && !n.AvailableForJobs {
			for _, id := range sortedIDs(n.RunningJobs) {
				c.add(id, true)
			}
		}
		if hadTasks && !n.AvailableForTasks {
			for _, id := range sortedIDs(n.RunningTasks) {
				c.add(id, false)
			}
		}
		if oldModel != "" && oldModel != n.CPUModel {
			m.cancelModelMismatch(n, c)
		}
	}

	for _, name := range m.nodeNames() {
		if _, ok := states[name]; ok {
			continue
		}
		n := m.nodes[name]
		if n.Status != DISCONNECTED {
			log.WithFields(log.Fields{"node": name}).Warn("node disconnected")
			n.Status = DISCONNECTED
			n.AvailableForJobs = false
			n.AvailableForTasks = false
			lost = true
		}
		for _, id := range sortedIDs(n.RunningJobs) {
			c.add(id, true)
		}
		for _, id := range sortedIDs(n.RunningTasks) {
			c.add(id, false)
		}
	}

	if lost {
		m.restoreCapacity(c)
		m.restoreInvariant(c)
	}

	for _, n := range m.nodes {
		n.updateStatus()
	}
	m.initialized = true
	m.updateStats()

	if len(c.jobs) > 0 || len(c.tasks) > 0 {
		m.stat.Counter(stats.ResourceCancellationsCounter).Inc(int64(len(c.jobs) + len(c.tasks)))
		log.WithFields(log.Fields{
			"jobs":  c.jobs,
			"tasks": c.tasks,
		}).Warn("node changes require cancellations")
	}
	return c.jobs, c.tasks, nil
}

func (m *Manager) cancelModelMismatch(n *Node, c *cancellation) {
	for _, id := range sortedIDs(n.RunningJobs) {
		if model := m.reservations[id].Limits.CPUModel; model != "" && model != n.CPUModel {
			c.add(id, true)
		}
	}
	for _, id := range sortedIDs(n.RunningTasks) {
		if model := m.reservations[id].Limits.CPUModel; model != "" && model != n.CPUModel {
			c.add(id, false)
		}
	}
}

// restoreCapacity selects items on overcommitted nodes until every node
// offers at least what remains reserved on it. Only items that give back
// an overcommitted resource are taken: jobs first, lowest priority and then
// largest first, then tasks in the same order.
func (m *Manager) restoreCapacity(c *cancellation) {
	v := m.view(c.ids)
	for _, l := range v.nodes {
		if !overcommitted(l) {
			continue
		}
		var candidates []*reservation
		for _, r := range m.sortedReservations() {
			if r.node == l.name && !c.ids[r.ID] {
				candidates = append(candidates, r)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.isJob != b.isJob {
				return a.isJob
			}
			return victimLess(a, b)
		})
		for _, r := range candidates {
			if !overcommitted(l) {
				break
			}
			if !relieves(l, r.Limits) {
				continue
			}
			c.add(r.ID, r.isJob)
			v.unreserve(l, r)
		}
	}
}

// restoreInvariant selects running jobs until the task budget guarantee
// holds again: lowest priority first, preferring jobs whose task budget asks
// for the CPU model that can no longer be served, then the largest jobs.
// The check is redone from scratch after every selection.
func (m *Manager) restoreInvariant(c *cancellation) {
	for {
		v := m.view(c.ids)
		ok, model := v.checkInvariant()
		if ok {
			return
		}
		candidates := make([]*reservation, len(v.jobs))
		copy(candidates, v.jobs)
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			am, bm := a.TaskLimits.CPUModel == model, b.TaskLimits.CPUModel == model
			if am != bm {
				return am
			}
			return victimLess(a, b)
		})
		log.WithFields(log.Fields{
			"model": model,
			"jobID": candidates[0].ID,
		}).Info("cancelling job to keep task resources available")
		c.add(candidates[0].ID, true)
	}
}

func overcommitted(l *nodeLoad) bool {
	return l.freeCPU < 0 || l.freeRAM < 0 || l.freeDisk < 0
}

func relieves(l *nodeLoad, limits domain.ResourceLimits) bool {
	return l.freeCPU < 0 && limits.CPUCores > 0 ||
		l.freeRAM < 0 && limits.MemorySize > 0 ||
		l.freeDisk < 0 && limits.DiskSize > 0
}

// victimLess orders by priority ascending, then by size descending, then id.
func victimLess(a, b *reservation) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Limits.CPUCores != b.Limits.CPUCores {
		return a.Limits.CPUCores > b.Limits.CPUCores
	}
	if a.Limits.MemorySize != b.Limits.MemorySize {
		return a.Limits.MemorySize > b.Limits.MemorySize
	}
	if a.Limits.DiskSize != b.Limits.DiskSize {
		return a.Limits.DiskSize > b.Limits.DiskSize
	}
	return a.ID < b.ID
}
