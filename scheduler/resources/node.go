package resources

import (
	"fmt"
	"sort"

	"github.com/davecgh/go-spew/spew"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/scheduler/domain"
)

type NodeStatus int

const (
	// Reservations fit in what the node offers.
	HEALTHY NodeStatus = iota
	// The node offers less than is reserved on it.
	AILING
	// The node is missing from the directory. It is kept while items reference it.
	DISCONNECTED
)

func (s NodeStatus) String() string {
	switch s {
	case HEALTHY:
		return "HEALTHY"
	case AILING:
		return "AILING"
	case DISCONNECTED:
		return "DISCONNECTED"
	default:
		panic(fmt.Sprintf("unknown node status %d", int(s)))
	}
}

// Node is one worker machine as the manager sees it. Sizes are bytes.
type Node struct {
	Name     string
	CPUModel string

	CPUCores      int
	AvailableCPU  int
	RAM           int64
	AvailableRAM  int64
	Disk          int64
	AvailableDisk int64

	AvailableForJobs  bool
	AvailableForTasks bool
	Status            NodeStatus

	ReservedCPU  int
	ReservedRAM  int64
	ReservedDisk int64
	// KeptDisk is the part of ReservedDisk held by preserved working directories.
	KeptDisk int64

	RunningJobs  map[string]struct{}
	RunningTasks map[string]struct{}
}

func newNode(name string) *Node {
	return &Node{
		Name:         name,
		Status:       HEALTHY,
		RunningJobs:  make(map[string]struct{}),
		RunningTasks: make(map[string]struct{}),
	}
}

func (n *Node) FreeCPU() int    { return n.AvailableCPU - n.ReservedCPU }
func (n *Node) FreeRAM() int64  { return n.AvailableRAM - n.ReservedRAM }
func (n *Node) FreeDisk() int64 { return n.AvailableDisk - n.ReservedDisk }

func (n *Node) overcommitted() bool {
	return n.FreeCPU() < 0 || n.FreeRAM() < 0 || n.FreeDisk() < 0
}

func (n *Node) fits(l domain.ResourceLimits) bool {
	return n.FreeCPU() >= l.CPUCores && n.FreeRAM() >= l.MemorySize && n.FreeDisk() >= l.DiskSize
}

// apply takes new facts from the directory and reports whether the node now
// offers less than before in any respect.
func (n *Node) apply(st cluster.NodeState) (lost bool) {
	lost = st.AvailableCPUNumber < n.AvailableCPU ||
		st.AvailableRAMMemory < n.AvailableRAM ||
		st.AvailableDiskMemory < n.AvailableDisk ||
		(n.AvailableForJobs && !st.AvailableForJobs) ||
		(n.AvailableForTasks && !st.AvailableForTasks) ||
		(n.CPUModel != "" && n.CPUModel != st.CPUModel)

	n.CPUModel = st.CPUModel
	n.CPUCores = st.CPUNumber
	n.AvailableCPU = st.AvailableCPUNumber
	n.RAM = st.RAMMemory
	n.AvailableRAM = st.AvailableRAMMemory
	n.Disk = st.DiskMemory
	n.AvailableDisk = st.AvailableDiskMemory
	n.AvailableForJobs = st.AvailableForJobs
	n.AvailableForTasks = st.AvailableForTasks
	return lost
}

func (n *Node) updateStatus() {
	if n.Status == DISCONNECTED {
		return
	}
	if n.overcommitted() {
		n.Status = AILING
	} else {
		n.Status = HEALTHY
	}
}

func (n *Node) running(isJob bool) map[string]struct{} {
	if isJob {
		return n.RunningJobs
	}
	return n.RunningTasks
}

func (n *Node) copy() Node {
	c := *n
	c.RunningJobs = make(map[string]struct{}, len(n.RunningJobs))
	for id := range n.RunningJobs {
		c.RunningJobs[id] = struct{}{}
	}
	c.RunningTasks = make(map[string]struct{}, len(n.RunningTasks))
	for id := range n.RunningTasks {
		c.RunningTasks[id] = struct{}{}
	}
	return c
}

func (n *Node) configuration() domain.NodeConfiguration {
	return domain.NodeConfiguration{
		Name:     n.Name,
		CPUModel: n.CPUModel,
		CPUCores: n.CPUCores,
		RAMGB:    domain.GB(n.RAM),
		DiskGB:   domain.GB(n.Disk),
		Workload: domain.NodeWorkload{
			ReservedCPU:       n.ReservedCPU,
			ReservedRAMGB:     domain.GB(n.ReservedRAM),
			ReservedDiskGB:    domain.GB(n.ReservedDisk),
			RunningJobs:       len(n.RunningJobs),
			RunningTasks:      len(n.RunningTasks),
			AvailableForJobs:  n.AvailableForJobs,
			AvailableForTasks: n.AvailableForTasks,
		},
	}
}

func (n *Node) String() string {
	return spew.Sdump(n.copy())
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
