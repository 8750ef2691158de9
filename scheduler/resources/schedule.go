package resources

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/stats"
)

// Schedule picks pending items to start now and places each on a node.
// Both lists are expected in ascending priority order, as the loop keeps
// them. Nothing is claimed: the caller claims every returned assignment
// before starting it.
//
// Admission runs in three passes over a working copy of the system:
//  1. jobs with a priority above every running job, highest first,
//  2. tasks, highest priority first, bounded by the process pool,
//  3. the remaining jobs whose priority is not below any running job.
//
// A job is only placed where the task budget guarantee still holds with it
// admitted; otherwise it stays pending.
func (m *Manager) Schedule(pendingTasks, pendingJobs []Item) (tasks, jobs []Assignment) {
	if !m.initialized {
		return nil, nil
	}
	for _, item := range pendingTasks {
		if _, ok := m.reservations[item.ID]; ok {
			violation("task %s is running but was passed to Schedule", item.ID)
		}
	}
	for _, item := range pendingJobs {
		if _, ok := m.reservations[item.ID]; ok {
			violation("job %s is running but was passed to Schedule", item.ID)
		}
	}

	v := m.view(nil)
	runningJobs, runningTasks := m.runningCounts()
	highest := m.highestRunningJobPriority()
	admitted := make(map[string]bool)

	byPriority := make([]Item, len(pendingJobs))
	copy(byPriority, pendingJobs)
	sort.SliceStable(byPriority, func(i, j int) bool {
		return byPriority[i].Priority > byPriority[j].Priority
	})

	admitJobs := func(accept func(Item) bool) {
		for _, item := range byPriority {
			if runningJobs+len(jobs) >= m.config.MaxJobs {
				return
			}
			if admitted[item.ID] || !accept(item) {
				continue
			}
			if node, ok := m.placeJob(v, item); ok {
				admitted[item.ID] = true
				jobs = append(jobs, Assignment{ID: item.ID, Node: node})
			}
		}
	}

	admitJobs(func(item Item) bool { return item.Priority > highest })

	pool := m.poolSize()
	for i := len(pendingTasks) - 1; i >= 0; i-- {
		if runningTasks+len(tasks) >= pool {
			break
		}
		item := pendingTasks[i]
		ranked := v.ranked(item.Limits, false)
		if len(ranked) == 0 {
			continue
		}
		v.reserve(ranked[0], &reservation{Item: item, node: ranked[0].name})
		tasks = append(tasks, Assignment{ID: item.ID, Node: ranked[0].name})
	}

	admitJobs(func(item Item) bool { return item.Priority >= highest })

	if len(tasks) > 0 || len(jobs) > 0 {
		log.WithFields(log.Fields{
			"tasks":   len(tasks),
			"jobs":    len(jobs),
			"highest": highest.String(),
			"pool":    pool,
		}).Debug("scheduled")
	}
	return tasks, jobs
}

// placeJob reserves item on the first ranked node where the task budget
// guarantee survives. The view is left unchanged if there is none.
func (m *Manager) placeJob(v *systemView, item Item) (string, bool) {
	ranked := v.ranked(item.Limits, true)
	for _, l := range ranked {
		r := &reservation{Item: item, isJob: true, node: l.name}
		v.reserve(l, r)
		if ok, _ := v.checkInvariant(); ok {
			return l.name, true
		}
		v.unreserve(l, r)
	}
	if len(ranked) > 0 {
		m.stat.Counter(stats.ResourceInvariantRejectionsCounter).Inc(1)
		log.WithFields(log.Fields{
			"jobID":      item.ID,
			"taskLimits": item.TaskLimits.String(),
		}).Debug("job deferred, its tasks could not be guaranteed resources")
	}
	return "", false
}
