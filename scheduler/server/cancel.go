package server

import (
	"sort"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/reports"
)

// ending is how an item leaves the loop.
type ending int

const (
	// The server already knows the outcome; nothing is reported.
	endSilently ending = iota
	endCancelled
	endFailed
	endFinished
)

func (e ending) String() string {
	switch e {
	case endSilently:
		return "dropped"
	case endCancelled:
		return "cancelled"
	case endFailed:
		return "failed"
	}
	return "finished"
}

// endJob takes j out of the pending and processing phases: its live run is
// stopped, its reservation released and the outcome queued for the server.
// Tasks of the job end with it. res is set when the run itself finished.
// Ending an item twice is a no-op.
func (s *Scheduler) endJob(j *jobState, how ending, msg string, res *runner.Result) {
	if j == nil || j.phase == reporting {
		return
	}
	taskMsg := msg
	if how == endFailed {
		taskMsg = "job " + j.id + " failed: " + msg
	}
	for _, tid := range sortedKeys(j.tasks) {
		if t, ok := s.tasks[tid]; ok {
			s.endTask(t, taskEnding(how), taskMsg, nil)
		}
	}

	s.stop(&j.item, res)
	var keep int64
	if res != nil && j.config != nil {
		keep = clampKeep(res.KeepDisk, j.config.Limits.DiskSize)
	}
	s.release(&j.item, true, keep)
	j.phase = reporting

	switch how {
	case endFinished:
		s.report(reports.JobStatus(j.id, domain.Solved, true))
	case endFailed:
		s.report(reports.Error(domain.KindJob, j.id, msg))
	case endCancelled:
		s.report(reports.JobStatus(j.id, domain.Cancelled, true))
	}
	s.count(how)
	j.logTags().Entry().WithField("msg", msg).Infof("Job %s", how)
	if how == endSilently {
		s.clear(domain.KindJob, j.id)
	}
}

func (s *Scheduler) endTask(t *taskState, how ending, msg string, res *runner.Result) {
	if t == nil || t.phase == reporting {
		return
	}
	s.stop(&t.item, res)
	var keep int64
	if res != nil && t.desc != nil {
		keep = clampKeep(res.KeepDisk, t.desc.Limits.DiskSize)
	}
	s.release(&t.item, false, keep)
	t.phase = reporting

	switch how {
	case endFinished:
		s.report(reports.Solution(t.id, res.Description, res.ArchivePath))
		s.report(reports.TaskStatus(t.id, domain.TaskFinished, true))
	case endFailed:
		s.report(reports.Error(domain.KindTask, t.id, msg))
	case endCancelled:
		s.report(reports.TaskStatus(t.id, domain.TaskCancelled, true))
	}
	s.count(how)
	t.logTags().Entry().WithField("msg", msg).Infof("Task %s", how)
	if how == endSilently {
		s.clear(domain.KindTask, t.id)
	}
}

// stop cancels a run that has not finished on its own.
func (s *Scheduler) stop(it *item, res *runner.Result) {
	if it.handle != "" && res == nil {
		s.run.Cancel(it.handle)
	}
	it.handle = ""
}

// release gives back the item's reservation, at most once.
func (s *Scheduler) release(it *item, isJob bool, keepDisk int64) {
	if !it.claimed {
		return
	}
	s.res.ReleaseResources(it.id, it.node, isJob, keepDisk)
	it.claimed = false
}

func (s *Scheduler) count(how ending) {
	switch how {
	case endFinished:
		s.stat.Counter(stats.SchedFinishedCounter).Inc(1)
	case endFailed:
		s.stat.Counter(stats.SchedFailedCounter).Inc(1)
	case endCancelled:
		s.stat.Counter(stats.SchedCancelledCounter).Inc(1)
	}
}

// taskEnding is how the tasks of a job end when the job does. Tasks still
// running when their job finishes are cancelled.
func taskEnding(how ending) ending {
	if how == endFinished {
		return endCancelled
	}
	return how
}

func clampKeep(keep, disk int64) int64 {
	if keep < 0 {
		return 0
	}
	if keep > disk {
		return disk
	}
	return keep
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
