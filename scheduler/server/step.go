package server

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/log/tags"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
	"github.com/verisched/verisched/scheduler/reports"
)

// step is one iteration of the loop:
//
//	ingest notifications, pull and prepare new items, collect finished runs,
//	refresh the node view, start what fits, flush reports, publish nodes,
//	and now and then reconcile with the server.
//
// An error means the loop can no longer keep its promises to the server.
func (s *Scheduler) step(ctx context.Context) error {
	defer s.stat.Latency(stats.SchedStepLatency_ms).Time().Stop()
	s.steps++

	s.async.ProcessMessages()
	s.ingest()
	s.prepare(ctx)
	s.poll()
	s.refresh(ctx)
	if s.fresh {
		s.schedule()
	}
	s.run.Flush()
	if err := s.flushReports(ctx); err != nil {
		return err
	}
	s.submitNodes(ctx)
	s.submitTools(ctx)
	if s.steps%s.config.ReconcileEvery == 0 {
		s.reconcile(ctx)
	}
	s.updateStats()
	return nil
}

// prepare pulls the configuration of new items and hands them to the runner.
// Pulls stop for the step at the first transport failure; the items stay
// pending and are pulled again later.
func (s *Scheduler) prepare(ctx context.Context) {
	if !s.res.Initialized() {
		return
	}
	pullsFailed := false

	for _, j := range sortedJobs(s.jobs) {
		if j.phase != pending || j.prepared {
			continue
		}
		if j.config == nil {
			if pullsFailed {
				continue
			}
			config, err := s.pullJob(ctx, j.id)
			if err != nil {
				pullsFailed = s.pullFailed(domain.KindJob, j.id, err)
				continue
			}
			j.config = config
		}
		if err := s.res.CheckResources(j.resourceItem(), true, nil); err != nil {
			s.endJob(j, endFailed, err.Error(), nil)
			continue
		}
		if err := s.run.PrepareJob(j.config); err != nil {
			s.endJob(j, endFailed, "preparing job: "+err.Error(), nil)
			continue
		}
		j.prepared = true
		j.logTags().Entry().Info("Prepared job")
	}

	for _, t := range sortedTasks(s.tasks) {
		if t.phase != pending || t.prepared {
			continue
		}
		if t.desc == nil {
			if pullsFailed {
				continue
			}
			desc, err := s.pullTask(ctx, t.id)
			if err != nil {
				pullsFailed = s.pullFailed(domain.KindTask, t.id, err)
				continue
			}
			t.desc = desc
			if j, ok := s.jobs[desc.JobID]; ok {
				j.tasks[t.id] = struct{}{}
			}
		}

		var budget *domain.ResourceLimits
		if j, ok := s.jobs[t.desc.JobID]; ok {
			if j.phase == reporting {
				s.endTask(t, endFailed, "job "+j.id+" is no longer running", nil)
				continue
			}
			if j.config != nil {
				budget = &j.config.TaskLimits
			}
		} else if s.wasCleared(domain.KindJob, t.desc.JobID) {
			s.endTask(t, endFailed, "job "+t.desc.JobID+" is no longer running", nil)
			continue
		}
		if err := s.res.CheckResources(t.resourceItem(), false, budget); err != nil {
			s.endTask(t, endFailed, err.Error(), nil)
			continue
		}
		if err := s.run.PrepareTask(t.desc); err != nil {
			s.endTask(t, endFailed, "preparing task: "+err.Error(), nil)
			continue
		}
		t.prepared = true
		t.logTags().Entry().Info("Prepared task")
	}
}

func (s *Scheduler) pullJob(ctx context.Context, id string) (*domain.JobConfiguration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	config, err := s.js.PullJobConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if config.ID != id {
		return nil, errors.Errorf("server sent configuration of job %q for %q", config.ID, id)
	}
	return config, config.Validate()
}

func (s *Scheduler) pullTask(ctx context.Context, id string) (*domain.TaskDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	desc, err := s.js.PullTaskConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if desc.ID != id {
		return nil, errors.Errorf("server sent description of task %q for %q", desc.ID, id)
	}
	return desc, desc.Validate()
}

// pullFailed handles a failed pull and reports whether further pulls should
// wait for the next step. An item the server no longer knows is dropped; an
// item with incomplete limits fails; anything else is retried.
func (s *Scheduler) pullFailed(kind domain.ItemKind, id string, err error) bool {
	entry := log.WithFields(
		log.Fields{
			"kind": kind,
			"id":   id,
			"err":  err,
		})
	switch {
	case jobserver.IsNotFound(err):
		entry.Info("Server no longer knows the item, dropping it")
		if kind == domain.KindJob {
			s.endJob(s.jobs[id], endSilently, "", nil)
		} else {
			s.endTask(s.tasks[id], endSilently, "", nil)
		}
		return false
	case errors.Cause(err) == domain.ErrIncompleteRestriction:
		entry.Warn("Rejecting item with incomplete resource limits")
		if kind == domain.KindJob {
			s.endJob(s.jobs[id], endFailed, err.Error(), nil)
		} else {
			s.endTask(s.tasks[id], endFailed, err.Error(), nil)
		}
		return false
	}
	s.stat.Counter(stats.SchedPullFailuresCounter).Inc(1)
	entry.Warn("Failed to pull configuration, will retry")
	return true
}

// poll collects finished runs.
func (s *Scheduler) poll() {
	for _, j := range sortedJobs(s.jobs) {
		if j.phase != processing || !s.run.IsDone(j.handle) {
			continue
		}
		res := s.result(j.handle, j.logTags())
		if res.State == runner.FINISHED {
			s.endJob(j, endFinished, "", &res)
		} else {
			s.endJob(j, endFailed, res.Message, &res)
		}
	}
	for _, t := range sortedTasks(s.tasks) {
		if t.phase != processing || !s.run.IsDone(t.handle) {
			continue
		}
		res := s.result(t.handle, t.logTags())
		if res.State == runner.FINISHED {
			s.endTask(t, endFinished, "", &res)
		} else {
			s.endTask(t, endFailed, res.Message, &res)
		}
	}
}

// result reads the outcome of a finished run. Anything that goes wrong while
// reading it, a panic included, makes the run an error.
func (s *Scheduler) result(h runner.Handle, lt tags.LogTags) (res runner.Result) {
	defer func() {
		if r := recover(); r != nil {
			lt.Entry().WithField("panic", r).Error("Reading run result panicked")
			res = runner.ErrorResult("reading result failed: %v", r)
		}
	}()
	var err error
	res, err = s.run.ProcessResult(h)
	if err != nil {
		lt.Entry().WithField("err", err).Warn("Reading run result failed")
		return runner.ErrorResult("reading result failed: %s", err)
	}
	if res.State != runner.FINISHED && res.State != runner.ERROR {
		return runner.ErrorResult("run ended in state %s", res.State)
	}
	return res
}

// refresh reads the node directory. Reservations that nodes no longer
// honor are cancelled with an error. Until a refresh succeeds nothing new is
// scheduled.
func (s *Scheduler) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	jobs, tasks, err := s.res.UpdateSystemStatus(ctx, s.dir)
	if err != nil {
		if s.fresh {
			log.WithFields(log.Fields{"err": err}).Warn("Node directory unavailable, scheduling paused")
		}
		s.fresh = false
		return
	}
	if !s.fresh {
		log.Info("Node directory available, scheduling")
	}
	s.fresh = true

	for _, id := range jobs {
		if j, ok := s.jobs[id]; ok {
			s.endJob(j, endFailed, "node "+j.node+" can no longer hold the job's reservation", nil)
		}
	}
	for _, id := range tasks {
		if t, ok := s.tasks[id]; ok {
			s.endTask(t, endFailed, "node "+t.node+" can no longer hold the task's reservation", nil)
		}
	}
}

// schedule starts every item the resource manager places.
func (s *Scheduler) schedule() {
	pendingTasks, pendingJobs := s.schedulable()
	if len(pendingTasks) == 0 && len(pendingJobs) == 0 {
		return
	}
	tasks, jobs := s.res.Schedule(pendingTasks, pendingJobs)
	for _, a := range jobs {
		s.startJob(s.jobs[a.ID], a.Node)
	}
	for _, a := range tasks {
		s.startTask(s.tasks[a.ID], a.Node)
	}
}

func (s *Scheduler) startJob(j *jobState, node string) {
	s.res.ClaimResources(j.resourceItem(), node, true)
	j.claimed, j.node = true, node
	h, err := s.run.SolveJob(j.config)
	if err != nil {
		s.endJob(j, endFailed, "starting job: "+err.Error(), nil)
		return
	}
	j.handle, j.phase = h, processing
	s.report(reports.JobStatus(j.id, domain.Processing, false))
	s.stat.Counter(stats.SchedStartedJobsCounter).Inc(1)
	j.logTags().Entry().Info("Started job")
}

func (s *Scheduler) startTask(t *taskState, node string) {
	s.res.ClaimResources(t.resourceItem(), node, false)
	t.claimed, t.node = true, node
	h, err := s.run.SolveTask(t.desc)
	if err != nil {
		s.endTask(t, endFailed, "starting task: "+err.Error(), nil)
		return
	}
	t.handle, t.phase = h, processing
	s.report(reports.TaskStatus(t.id, domain.TaskProcessing, false))
	s.stat.Counter(stats.SchedStartedTasksCounter).Inc(1)
	t.logTags().Entry().Info("Started task")
}

// flushReports sends queued reports and forgets items whose final report
// went out.
func (s *Scheduler) flushReports(ctx context.Context) error {
	delivered, err := s.outbox.Flush(ctx)
	for _, r := range delivered {
		if r.ItemKind == domain.KindJob {
			if j, ok := s.jobs[r.ItemID]; ok && j.phase == reporting {
				s.clear(domain.KindJob, r.ItemID)
			}
		} else if t, ok := s.tasks[r.ItemID]; ok && t.phase == reporting {
			s.clear(domain.KindTask, r.ItemID)
		}
	}
	if err != nil {
		return errors.Wrap(err, "flushing reports")
	}
	return nil
}

// submitNodes publishes node configurations when they changed since the last
// successful submission.
func (s *Scheduler) submitNodes(ctx context.Context) {
	if !s.fresh {
		return
	}
	nodes := s.res.NodeConfigurations()
	if s.nodesSent && reflect.DeepEqual(nodes, s.lastNodes) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	if err := s.js.SubmitNodes(ctx, nodes); err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("Failed to submit nodes")
		return
	}
	s.nodesSent, s.lastNodes = true, nodes
}

// submitTools publishes the installed tools once per start.
func (s *Scheduler) submitTools(ctx context.Context) {
	if s.toolsSent {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	if err := s.js.SubmitTools(ctx, s.config.Tools); err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("Failed to submit tools")
		return
	}
	s.toolsSent = true
}
