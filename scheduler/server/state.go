package server

import (
	"sort"

	"github.com/verisched/verisched/common/log/tags"
	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/resources"
)

// phase is where an item is in the loop's own lifecycle.
type phase int

const (
	// Waiting for its configuration, preparation or a free slot.
	pending phase = iota
	// Started through the runner.
	processing
	// Finished, failed or cancelled; kept until the final report is sent.
	reporting
)

func (p phase) String() string {
	switch p {
	case pending:
		return "pending"
	case processing:
		return "processing"
	}
	return "reporting"
}

// item is what jobs and tasks share.
type item struct {
	id    string
	phase phase
	// seq orders items by arrival.
	seq      uint64
	prepared bool
	handle   runner.Handle
	node     string
	// claimed is true while the item holds a reservation.
	claimed bool
}

type jobState struct {
	item
	config *domain.JobConfiguration
	tasks  map[string]struct{}
}

type taskState struct {
	item
	desc *domain.TaskDescription
}

func (j *jobState) resourceItem() resources.Item {
	return resources.Item{
		ID:         j.id,
		Priority:   j.config.Priority,
		Limits:     j.config.Limits,
		TaskLimits: j.config.TaskLimits,
	}
}

func (t *taskState) resourceItem() resources.Item {
	return resources.Item{ID: t.id, Priority: t.desc.Priority, Limits: t.desc.Limits}
}

func (j *jobState) logTags() tags.LogTags {
	return tags.LogTags{JobID: j.id, Node: j.node}
}

func (t *taskState) logTags() tags.LogTags {
	lt := tags.LogTags{TaskID: t.id, Node: t.node}
	if t.desc != nil {
		lt.JobID = t.desc.JobID
	}
	return lt
}

// schedulable returns the prepared pending items in ascending priority.
// Within a priority, tasks are ordered newest first and jobs oldest first, so
// that both are considered in arrival order by the resource manager.
func (s *Scheduler) schedulable() (tasks, jobs []resources.Item) {
	var ts []*taskState
	for _, t := range s.tasks {
		if t.phase == pending && t.prepared {
			ts = append(ts, t)
		}
	}
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].desc.Priority != ts[j].desc.Priority {
			return ts[i].desc.Priority < ts[j].desc.Priority
		}
		return ts[i].seq > ts[j].seq
	})
	for _, t := range ts {
		tasks = append(tasks, t.resourceItem())
	}

	var js []*jobState
	for _, j := range s.jobs {
		if j.phase == pending && j.prepared {
			js = append(js, j)
		}
	}
	sort.Slice(js, func(i, k int) bool {
		if js[i].config.Priority != js[k].config.Priority {
			return js[i].config.Priority < js[k].config.Priority
		}
		return js[i].seq < js[k].seq
	})
	for _, j := range js {
		jobs = append(jobs, j.resourceItem())
	}
	return tasks, jobs
}

func sortedJobs(m map[string]*jobState) []*jobState {
	out := make([]*jobState, 0, len(m))
	for _, j := range m {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].seq < out[k].seq })
	return out
}

func sortedTasks(m map[string]*taskState) []*taskState {
	out := make([]*taskState, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].seq < out[k].seq })
	return out
}
