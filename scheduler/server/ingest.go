package server

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/reports"
)

// ingest applies queued notifications, at most MaxNotificationsPerStep.
func (s *Scheduler) ingest() {
	for i := 0; i < s.config.MaxNotificationsPerStep; i++ {
		select {
		case n := <-s.notifyCh:
			s.stat.Counter(stats.SchedNotificationsCounter).Inc(1)
			s.handle(n)
		default:
			return
		}
	}
}

func (s *Scheduler) handle(n domain.Notification) {
	if n.Kind == domain.KindJob {
		s.handleJob(n.ID, n.JobStatus)
	} else {
		s.handleTask(n.ID, n.TaskStatus)
	}
}

// handleJob reconciles one server-side job status with the loop's view.
// Items whose outcome is already decided ignore further notifications.
func (s *Scheduler) handleJob(id string, st domain.Status) {
	j, known := s.jobs[id]
	if known && j.phase == reporting {
		return
	}
	switch {
	case st == domain.Pending:
		if !known {
			s.nextSeq++
			s.jobs[id] = &jobState{
				item:  item{id: id, seq: s.nextSeq},
				tasks: make(map[string]struct{}),
			}
			s.cleared.Remove(reports.Key(domain.KindJob, id))
			log.WithFields(log.Fields{"jobID": id}).Info("New pending job")
		}
	case st == domain.Processing:
		if !known {
			s.lost(domain.KindJob, id)
		}
	case st == domain.Cancelling:
		if known {
			s.endJob(j, endCancelled, "cancelled by the server", nil)
		} else if !s.wasCleared(domain.KindJob, id) {
			s.report(reports.JobStatus(id, domain.Cancelled, true))
			s.remember(domain.KindJob, id)
		}
	case st.IsFinal():
		if known {
			s.endJob(j, endSilently, "server reports "+st.String(), nil)
		}
	}
}

func (s *Scheduler) handleTask(id string, st domain.TaskStatus) {
	t, known := s.tasks[id]
	if known && t.phase == reporting {
		return
	}
	switch {
	case st == domain.TaskPending:
		if !known {
			s.nextSeq++
			s.tasks[id] = &taskState{item: item{id: id, seq: s.nextSeq}}
			s.cleared.Remove(reports.Key(domain.KindTask, id))
			log.WithFields(log.Fields{"taskID": id}).Info("New pending task")
		}
	case st == domain.TaskProcessing:
		if !known {
			s.lost(domain.KindTask, id)
		}
	case st.IsFinal():
		if known {
			s.endTask(t, endSilently, "server reports "+string(st), nil)
		}
	}
}

// lost fails an item the server believes is running here but the loop has
// never seen, which happens after a restart.
func (s *Scheduler) lost(kind domain.ItemKind, id string) {
	if s.wasCleared(kind, id) {
		return
	}
	log.WithFields(
		log.Fields{
			"kind": kind,
			"id":   id,
		}).Warn("Server reports an unknown item as processing")
	s.report(reports.Error(kind, id, "the scheduler lost track of the "+kind.String()+", probably after a restart"))
	s.remember(kind, id)
}

// reconcile fetches the server's view of all jobs and tasks in the
// background. The result is applied by a later step.
func (s *Scheduler) reconcile(ctx context.Context) {
	if s.reconciling {
		return
	}
	s.reconciling = true
	snapshot := s.nextSeq

	var jobs map[string]domain.Status
	var tasks map[string]domain.TaskStatus
	s.async.RunAsync(func() error {
		ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
		var err error
		if jobs, err = s.js.GetAllJobs(ctx); err != nil {
			return err
		}
		tasks, err = s.js.GetAllTasks(ctx)
		return err
	}, func(err error) {
		s.reconciling = false
		if err != nil {
			s.stat.Counter(stats.SchedReconciliationFailuresCounter).Inc(1)
			log.WithFields(log.Fields{"err": err}).Warn("Reconciliation failed")
			return
		}
		s.applyReconciliation(jobs, tasks, snapshot)
	})
}

// applyReconciliation treats every server status as a notification, then
// drops items the server no longer has. Items added after the snapshot was
// requested are kept since the server may have listed them too late. A
// PENDING status for an item cleared after the request is stale and ignored.
func (s *Scheduler) applyReconciliation(jobs map[string]domain.Status, tasks map[string]domain.TaskStatus, snapshot uint64) {
	s.stat.Counter(stats.SchedReconciliationsCounter).Inc(1)

	jobIDs := make([]string, 0, len(jobs))
	for id := range jobs {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)
	for _, id := range jobIDs {
		if jobs[id] == domain.Pending && s.clearedAfter(domain.KindJob, id, snapshot) {
			log.WithFields(log.Fields{"jobID": id}).Debug("Ignoring stale pending job")
			continue
		}
		s.handleJob(id, jobs[id])
	}

	taskIDs := make([]string, 0, len(tasks))
	for id := range tasks {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)
	for _, id := range taskIDs {
		if tasks[id] == domain.TaskPending && s.clearedAfter(domain.KindTask, id, snapshot) {
			log.WithFields(log.Fields{"taskID": id}).Debug("Ignoring stale pending task")
			continue
		}
		s.handleTask(id, tasks[id])
	}

	for _, j := range sortedJobs(s.jobs) {
		if _, ok := jobs[j.id]; !ok && j.seq <= snapshot && j.phase != reporting {
			s.endJob(j, endSilently, "no longer known to the server", nil)
		}
	}
	for _, t := range sortedTasks(s.tasks) {
		if _, ok := tasks[t.id]; !ok && t.seq <= snapshot && t.phase != reporting {
			s.endTask(t, endSilently, "no longer known to the server", nil)
		}
	}
	log.WithFields(
		log.Fields{
			"jobs":  len(jobs),
			"tasks": len(tasks),
		}).Debug("Reconciled with the server")
}
