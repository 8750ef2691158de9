// Package resources tracks what every worker node offers and what running
// jobs and tasks have reserved on it, and decides what may start next.
//
// Jobs reserve their own resources and also promise resources to the tasks
// they will spawn. Admission keeps the promise: a job is only admitted if,
// with every admitted job holding its reservation, a task of each job's
// budget still fits on some node. Without this check running jobs could take
// all capacity and wait forever for tasks that can never start.
//
// A Manager is not safe for concurrent use. The scheduler loop owns it.
package resources

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
)

const (
	DefaultMaxJobs      = 2
	DefaultMaxProcesses = 4
)

type Config struct {
	// Jobs running at once.
	MaxJobs int
	// Size of the process pool shared by running tasks.
	MaxProcesses int
	// ExternalLoad, if set, returns the pool slots currently taken by work
	// this scheduler did not start. It shrinks the pool.
	ExternalLoad func() int
}

// Item is a job or task asking for resources. TaskLimits is the budget a job
// promises its tasks and is ignored for tasks.
type Item struct {
	ID         string
	Priority   domain.Priority
	Limits     domain.ResourceLimits
	TaskLimits domain.ResourceLimits
}

// Assignment places an item on a node.
type Assignment struct {
	ID   string
	Node string
}

type reservation struct {
	Item
	isJob bool
	node  string
}

type Manager struct {
	config       Config
	nodes        map[string]*Node
	reservations map[string]*reservation
	initialized  bool
	stat         stats.StatsReceiver
}

func NewManager(config Config, stat stats.StatsReceiver) *Manager {
	if config.MaxJobs <= 0 {
		config.MaxJobs = DefaultMaxJobs
	}
	if config.MaxProcesses <= 0 {
		config.MaxProcesses = DefaultMaxProcesses
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Manager{
		config:       config,
		nodes:        make(map[string]*Node),
		reservations: make(map[string]*reservation),
		stat:         stat.Scope("resources"),
	}
}

// Initialized is true once node facts have been read successfully.
func (m *Manager) Initialized() bool {
	return m.initialized
}

// ClaimResources reserves item's limits on node. Schedule only proposes
// placements that fit, so a claim that does not fit, a second claim for the
// same id, or a claim on an unknown or disconnected node panics with an
// InvariantError and leaves the state unchanged.
func (m *Manager) ClaimResources(item Item, node string, isJob bool) {
	if _, ok := m.reservations[item.ID]; ok {
		violation("resources of %s are already claimed", item.ID)
	}
	n, ok := m.nodes[node]
	if !ok {
		violation("claim of %s on unknown node %s", item.ID, node)
	}
	if n.Status == DISCONNECTED {
		violation("claim of %s on disconnected node %s", item.ID, node)
	}
	if !n.fits(item.Limits) {
		violation("claim of %s %s exceeds free capacity of node %s (cpu %d, ram %s, disk %s)",
			item.ID, item.Limits, node, n.FreeCPU(), domain.FormatBytes(n.FreeRAM()), domain.FormatBytes(n.FreeDisk()))
	}

	n.ReservedCPU += item.Limits.CPUCores
	n.ReservedRAM += item.Limits.MemorySize
	n.ReservedDisk += item.Limits.DiskSize
	n.running(isJob)[item.ID] = struct{}{}
	m.reservations[item.ID] = &reservation{Item: item, isJob: isJob, node: node}

	log.WithFields(log.Fields{
		"id":     item.ID,
		"node":   node,
		"isJob":  isJob,
		"limits": item.Limits.String(),
	}).Debug("claimed resources")
}

// ReleaseResources returns the reservation of id. keepDisk bytes of its disk
// stay reserved on the node for a preserved working directory. Releasing an
// id that holds no reservation, or with the wrong node or kind, panics.
func (m *Manager) ReleaseResources(id, node string, isJob bool, keepDisk int64) {
	r, ok := m.reservations[id]
	if !ok {
		violation("release of %s without a claim", id)
	}
	if r.node != node || r.isJob != isJob {
		violation("release of %s on node %s (job: %v) but it was claimed on %s (job: %v)", id, node, isJob, r.node, r.isJob)
	}
	if keepDisk < 0 || keepDisk > r.Limits.DiskSize {
		violation("release of %s keeps %d bytes of disk out of %d reserved", id, keepDisk, r.Limits.DiskSize)
	}
	n := m.nodes[node]
	n.ReservedCPU -= r.Limits.CPUCores
	n.ReservedRAM -= r.Limits.MemorySize
	n.ReservedDisk -= r.Limits.DiskSize - keepDisk
	n.KeptDisk += keepDisk
	if n.ReservedCPU < 0 || n.ReservedRAM < 0 || n.ReservedDisk < 0 {
		violation("negative reservation on node %s after releasing %s", node, id)
	}
	delete(n.running(isJob), id)
	delete(m.reservations, id)
	n.updateStatus()

	log.WithFields(log.Fields{
		"id":       id,
		"node":     node,
		"isJob":    isJob,
		"keepDisk": keepDisk,
	}).Debug("released resources")
}

// Reserved reports whether id currently holds a reservation and where.
func (m *Manager) Reserved(id string) (string, bool) {
	r, ok := m.reservations[id]
	if !ok {
		return "", false
	}
	return r.node, true
}

// NodeInfo returns a copy of the node.
func (m *Manager) NodeInfo(name string) (Node, bool) {
	n, ok := m.nodes[name]
	if !ok {
		return Node{}, false
	}
	return n.copy(), true
}

// Nodes returns copies of all nodes ordered by name.
func (m *Manager) Nodes() []Node {
	out := make([]Node, 0, len(m.nodes))
	for _, name := range m.nodeNames() {
		out = append(out, m.nodes[name].copy())
	}
	return out
}

// NodeConfigurations is the per-node report for the server. Disconnected
// nodes are left out.
func (m *Manager) NodeConfigurations() []domain.NodeConfiguration {
	var out []domain.NodeConfiguration
	for _, name := range m.nodeNames() {
		n := m.nodes[name]
		if n.Status == DISCONNECTED {
			continue
		}
		out = append(out, n.configuration())
	}
	return out
}

// CheckInvariant checks the task budget guarantee for the running jobs.
func (m *Manager) CheckInvariant() bool {
	ok, _ := m.view(nil).checkInvariant()
	return ok
}

func (m *Manager) highestRunningJobPriority() domain.Priority {
	highest := domain.IDLE
	for _, r := range m.reservations {
		if r.isJob && r.Priority > highest {
			highest = r.Priority
		}
	}
	return highest
}

func (m *Manager) runningCounts() (jobs, tasks int) {
	for _, r := range m.reservations {
		if r.isJob {
			jobs++
		} else {
			tasks++
		}
	}
	return jobs, tasks
}

func (m *Manager) poolSize() int {
	size := m.config.MaxProcesses
	if m.config.ExternalLoad != nil {
		size -= m.config.ExternalLoad()
	}
	if size < 0 {
		return 0
	}
	return size
}

func (m *Manager) nodeNames() []string {
	names := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) sortedReservations() []*reservation {
	out := make([]*reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) updateStats() {
	var healthy, ailing, disconnected, cpu int64
	for _, n := range m.nodes {
		switch n.Status {
		case HEALTHY:
			healthy++
		case AILING:
			ailing++
		case DISCONNECTED:
			disconnected++
		}
		cpu += int64(n.ReservedCPU)
	}
	m.stat.Gauge(stats.ResourceHealthyNodesGauge).Update(healthy)
	m.stat.Gauge(stats.ResourceAilingNodesGauge).Update(ailing)
	m.stat.Gauge(stats.ResourceDisconnectedNodesGauge).Update(disconnected)
	m.stat.Gauge(stats.ResourceReservedCPUGauge).Update(cpu)
}
