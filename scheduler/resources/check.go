package resources

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/verisched/verisched/scheduler/domain"
)

// CheckResources decides whether item could ever run on the current
// cluster, ignoring what is reserved now. A task is also checked against
// budget, the task limits of its job, when the job is known.
//
// The returned *ShortfallError names every deficient dimension. Other
// errors mean the limits themselves are invalid.
func (m *Manager) CheckResources(item Item, isJob bool, budget *domain.ResourceLimits) error {
	if err := item.Limits.Validate(); err != nil {
		return errors.Wrapf(err, "%s", item.ID)
	}
	if isJob {
		if err := item.TaskLimits.Validate(); err != nil {
			return errors.Wrapf(err, "task limits of %s", item.ID)
		}
	}

	short := &ShortfallError{}
	if !isJob && budget != nil {
		if !item.Limits.ModelCompatible(*budget) {
			short.add(domain.DimCPUModel, "task asks for CPU model %q but its job allows only %q",
				item.Limits.CPUModel, budget.CPUModel)
		}
		for _, dim := range item.Limits.Exceeds(*budget) {
			short.add(dim, "task asks for more %s than its job allows (%s > %s)",
				dim, amount(item.Limits, dim), amount(*budget, dim))
		}
	}

	m.checkCapacity(short, "", item.Limits, isJob)
	if isJob && !zero(item.TaskLimits) {
		m.checkCapacity(short, "tasks: ", item.TaskLimits, false)
		if short.empty() && !m.coexists(item) {
			short.add(domain.DimCPUCores, "no node assignment lets the job and its largest task %s run at the same time",
				item.TaskLimits)
		}
	}

	if short.empty() {
		return nil
	}
	return short
}

// checkCapacity records why no live node of the right kind could ever hold
// limits. The node missing the fewest dimensions is the one reported.
func (m *Manager) checkCapacity(short *ShortfallError, prefix string, limits domain.ResourceLimits, isJob bool) {
	kind := "tasks"
	if isJob {
		kind = "jobs"
	}
	var best []string
	var bestNode *Node
	candidates := 0
	for _, name := range m.nodeNames() {
		n := m.nodes[name]
		if n.Status == DISCONNECTED || isJob && !n.AvailableForJobs || !isJob && !n.AvailableForTasks {
			continue
		}
		candidates++
		missing := deficits(n, limits)
		if len(missing) == 0 {
			return
		}
		if bestNode == nil || len(missing) < len(best) {
			best, bestNode = missing, n
		}
	}
	if candidates == 0 {
		short.add(domain.DimCPUCores, "%sno node accepts %s", prefix, kind)
		return
	}
	for _, dim := range best {
		short.add(dim, "%s%s: requested %s, node %s offers %s", prefix, dim,
			amount(limits, dim), bestNode.Name, offered(bestNode, dim))
	}
}

func deficits(n *Node, limits domain.ResourceLimits) []string {
	var dims []string
	if limits.CPUModel != "" && limits.CPUModel != n.CPUModel {
		dims = append(dims, domain.DimCPUModel)
	}
	if limits.CPUCores > n.AvailableCPU {
		dims = append(dims, domain.DimCPUCores)
	}
	if limits.MemorySize > n.AvailableRAM {
		dims = append(dims, domain.DimMemory)
	}
	if limits.DiskSize > n.AvailableDisk-n.KeptDisk {
		dims = append(dims, domain.DimDisk)
	}
	return dims
}

// coexists reports whether some placement of the job on an empty cluster
// leaves room for a task of its budget.
func (m *Manager) coexists(item Item) bool {
	v := m.emptyView()
	for _, l := range v.ranked(item.Limits, true) {
		r := &reservation{Item: item, isJob: true, node: l.name}
		v.reserve(l, r)
		ok, _ := v.checkInvariant()
		v.unreserve(l, r)
		if ok {
			return true
		}
	}
	return false
}

func zero(l domain.ResourceLimits) bool {
	return l.CPUCores == 0 && l.MemorySize == 0 && l.DiskSize == 0
}

func amount(l domain.ResourceLimits, dim string) string {
	switch dim {
	case domain.DimCPUCores:
		return fmt.Sprint(l.CPUCores)
	case domain.DimMemory:
		return domain.FormatBytes(l.MemorySize)
	case domain.DimDisk:
		return domain.FormatBytes(l.DiskSize)
	case domain.DimCPUModel:
		return fmt.Sprintf("%q", l.CPUModel)
	}
	return ""
}

func offered(n *Node, dim string) string {
	switch dim {
	case domain.DimCPUCores:
		return fmt.Sprint(n.AvailableCPU)
	case domain.DimMemory:
		return domain.FormatBytes(n.AvailableRAM)
	case domain.DimDisk:
		return domain.FormatBytes(n.AvailableDisk - n.KeptDisk)
	case domain.DimCPUModel:
		return fmt.Sprintf("%q", n.CPUModel)
	}
	return ""
}
