package resources

import (
	"sort"

	"github.com/verisched/verisched/scheduler/domain"
)

// nodeLoad is a node in a working copy of the system. free* count every
// reservation, jobFree* only job reservations: tasks end on their own, so
// the task budget guarantee is checked against jobFree*.
type nodeLoad struct {
	name     string
	model    string
	forJobs  bool
	forTasks bool

	freeCPU  int
	freeRAM  int64
	freeDisk int64

	jobFreeCPU  int
	jobFreeRAM  int64
	jobFreeDisk int64
}

func (l *nodeLoad) feasible(limits domain.ResourceLimits, isJob bool) bool {
	if isJob && !l.forJobs || !isJob && !l.forTasks {
		return false
	}
	if limits.CPUModel != "" && limits.CPUModel != l.model {
		return false
	}
	return l.freeCPU >= limits.CPUCores && l.freeRAM >= limits.MemorySize && l.freeDisk >= limits.DiskSize
}

// systemView is a scratch copy of node capacity that decisions are tried
// against before anything is claimed for real.
type systemView struct {
	nodes  []*nodeLoad
	byName map[string]*nodeLoad
	jobs   []*reservation
}

// view copies every connected node. Reservations of excluded ids, and of
// items on disconnected nodes, are left out.
func (m *Manager) view(exclude map[string]bool) *systemView {
	v := &systemView{byName: make(map[string]*nodeLoad)}
	for _, name := range m.nodeNames() {
		n := m.nodes[name]
		if n.Status == DISCONNECTED {
			continue
		}
		l := &nodeLoad{
			name:        n.Name,
			model:       n.CPUModel,
			forJobs:     n.AvailableForJobs,
			forTasks:    n.AvailableForTasks,
			freeCPU:     n.AvailableCPU,
			freeRAM:     n.AvailableRAM,
			freeDisk:    n.AvailableDisk - n.KeptDisk,
			jobFreeCPU:  n.AvailableCPU,
			jobFreeRAM:  n.AvailableRAM,
			jobFreeDisk: n.AvailableDisk - n.KeptDisk,
		}
		v.nodes = append(v.nodes, l)
		v.byName[n.Name] = l
	}
	for _, r := range m.sortedReservations() {
		if exclude[r.ID] {
			continue
		}
		if l, ok := v.byName[r.node]; ok {
			v.reserve(l, r)
		}
	}
	return v
}

// emptyView is the connected cluster with nothing reserved but preserved
// working directories.
func (m *Manager) emptyView() *systemView {
	all := make(map[string]bool, len(m.reservations))
	for id := range m.reservations {
		all[id] = true
	}
	return m.view(all)
}

func (v *systemView) reserve(l *nodeLoad, r *reservation) {
	l.freeCPU -= r.Limits.CPUCores
	l.freeRAM -= r.Limits.MemorySize
	l.freeDisk -= r.Limits.DiskSize
	if r.isJob {
		l.jobFreeCPU -= r.Limits.CPUCores
		l.jobFreeRAM -= r.Limits.MemorySize
		l.jobFreeDisk -= r.Limits.DiskSize
		v.jobs = append(v.jobs, r)
	}
}

func (v *systemView) unreserve(l *nodeLoad, r *reservation) {
	l.freeCPU += r.Limits.CPUCores
	l.freeRAM += r.Limits.MemorySize
	l.freeDisk += r.Limits.DiskSize
	if r.isJob {
		l.jobFreeCPU += r.Limits.CPUCores
		l.jobFreeRAM += r.Limits.MemorySize
		l.jobFreeDisk += r.Limits.DiskSize
		for i, j := range v.jobs {
			if j.ID == r.ID {
				v.jobs = append(v.jobs[:i], v.jobs[i+1:]...)
				break
			}
		}
	}
}

// ranked returns the nodes that can take limits now, most loaded first:
// free CPU, then free RAM, then free disk ascending, then name.
func (v *systemView) ranked(limits domain.ResourceLimits, isJob bool) []*nodeLoad {
	var out []*nodeLoad
	for _, l := range v.nodes {
		if l.feasible(limits, isJob) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.freeCPU != b.freeCPU {
			return a.freeCPU < b.freeCPU
		}
		if a.freeRAM != b.freeRAM {
			return a.freeRAM < b.freeRAM
		}
		if a.freeDisk != b.freeDisk {
			return a.freeDisk < b.freeDisk
		}
		return a.name < b.name
	})
	return out
}

// checkInvariant verifies that every job in the view can still run a task
// of its budget. Budgets are grouped by CPU model and the largest request
// per dimension must fit on some task node after all job reservations.
// On failure the offending CPU model is returned ("" means any model).
func (v *systemView) checkInvariant() (bool, string) {
	maxima := make(map[string]*domain.ResourceLimits)
	for _, j := range v.jobs {
		b := j.TaskLimits
		if zero(b) {
			// the job spawns no tasks
			continue
		}
		m, ok := maxima[b.CPUModel]
		if !ok {
			m = &domain.ResourceLimits{CPUModel: b.CPUModel}
			maxima[b.CPUModel] = m
		}
		if b.CPUCores > m.CPUCores {
			m.CPUCores = b.CPUCores
		}
		if b.MemorySize > m.MemorySize {
			m.MemorySize = b.MemorySize
		}
		if b.DiskSize > m.DiskSize {
			m.DiskSize = b.DiskSize
		}
	}

	models := make([]string, 0, len(maxima))
	for model := range maxima {
		models = append(models, model)
	}
	sort.Strings(models)

	for _, model := range models {
		task := maxima[model]
		satisfied := false
		for _, l := range v.nodes {
			if !l.forTasks || (model != "" && l.model != model) {
				continue
			}
			if l.jobFreeCPU >= task.CPUCores && l.jobFreeRAM >= task.MemorySize && l.jobFreeDisk >= task.DiskSize {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false, model
		}
	}
	return true, ""
}
