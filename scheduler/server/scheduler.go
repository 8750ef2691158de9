package server

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/async"
	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
	"github.com/verisched/verisched/scheduler/reports"
	"github.com/verisched/verisched/scheduler/resources"
)

// Status is a snapshot of the loop for the admin endpoints.
type Status struct {
	PendingJobs  int              `json:"pendingJobs"`
	RunningJobs  int              `json:"runningJobs"`
	PendingTasks int              `json:"pendingTasks"`
	RunningTasks int              `json:"runningTasks"`
	Unreported   int              `json:"unreported"`
	Fresh        bool             `json:"fresh"`
	Restarts     int              `json:"restarts"`
	Nodes        []resources.Node `json:"nodes"`
	Updated      time.Time        `json:"updated"`
}

// Scheduler is the single loop that takes jobs and tasks from the job
// server, places them on worker nodes and runs them through a Runner.
// Everything except Notify and Status runs on the goroutine calling Run.
type Scheduler struct {
	config    Config
	resConfig resources.Config
	js        jobserver.JobServer
	dir       cluster.Directory
	run       runner.Runner
	outbox    *reports.Outbox
	stat      stats.StatsReceiver

	notifyCh chan domain.Notification

	// Loop state. reset replaces all of it.
	res         *resources.Manager
	jobs        map[string]*jobState
	tasks       map[string]*taskState
	cleared     *lru.Cache
	async       async.Runner
	nextSeq     uint64
	steps       int
	fresh       bool
	reconciling bool
	nodesSent   bool
	lastNodes   []domain.NodeConfiguration
	toolsSent   bool

	restarts int
	started  time.Time

	statusMu sync.RWMutex
	status   Status
}

func New(
	config Config,
	resConfig resources.Config,
	js jobserver.JobServer,
	dir cluster.Directory,
	run runner.Runner,
	outbox *reports.Outbox,
	stat stats.StatsReceiver,
) *Scheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	config = config.withDefaults()
	s := &Scheduler{
		config:    config,
		resConfig: resConfig,
		js:        js,
		dir:       dir,
		run:       run,
		outbox:    outbox,
		stat:      stat,
		notifyCh:  make(chan domain.Notification, config.NotificationBuffer),
	}
	s.reset()
	log.Infof("Created scheduler with %s", config)
	return s
}

// reset drops all loop state. The outbox and queued notifications survive.
func (s *Scheduler) reset() {
	cleared, err := lru.New(s.config.RecentlyCleared)
	if err != nil {
		panic(err)
	}
	s.res = resources.NewManager(s.resConfig, s.stat)
	s.jobs = make(map[string]*jobState)
	s.tasks = make(map[string]*taskState)
	s.cleared = cleared
	s.async = async.NewRunner()
	s.steps = 0
	s.fresh = false
	s.reconciling = false
	s.nodesSent = false
	s.lastNodes = nil
	s.toolsSent = false
}

// Notify queues a status change pushed by the server. It never blocks: when
// the queue is full the notification is dropped and false returned. The next
// reconciliation picks up whatever was dropped.
func (s *Scheduler) Notify(n domain.Notification) bool {
	select {
	case s.notifyCh <- n:
		return true
	default:
		log.WithFields(
			log.Fields{
				"kind": n.Kind,
				"id":   n.ID,
			}).Warn("Notification queue full, dropping notification")
		return false
	}
}

func (s *Scheduler) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Run drives the loop until ctx is done, then cancels outstanding work,
// reports it and terminates the runner. An internal error abandons all
// work; in production mode the loop then starts over, otherwise Run
// returns the error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.started = time.Now()
	for {
		err := s.loop(ctx)
		if err == nil {
			s.terminate()
			return nil
		}
		log.WithFields(
			log.Fields{
				"err":      err,
				"restarts": s.restarts,
			}).Error("Scheduler loop failed, abandoning all work")
		s.abandon(err)
		if !s.config.ProductionMode {
			s.flushBestEffort()
			s.run.Terminate()
			return err
		}

		s.restarts++
		s.stat.Counter(stats.SchedRestartsCounter).Inc(1)
		s.flushBestEffort()
		select {
		case <-ctx.Done():
			s.run.Terminate()
			return nil
		case <-time.After(s.config.RestartCooldown):
		}
		log.Infof("Restarting scheduler (restart #%d)", s.restarts)
		s.reset()
	}
}

func (s *Scheduler) loop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in scheduler loop: %v\n%s", r, debug.Stack())
		}
	}()

	ticker := time.NewTicker(s.config.TickRate)
	defer ticker.Stop()
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// terminate is the orderly shutdown: every item is cancelled with an error
// report and the reports get one last chance to go out.
func (s *Scheduler) terminate() {
	log.Info("Terminating scheduler")
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"err": r}).Error("Scheduler termination failed")
			s.run.Terminate()
		}
	}()
	for _, j := range sortedJobs(s.jobs) {
		s.endJob(j, endFailed, "scheduler terminated", nil)
	}
	for _, t := range sortedTasks(s.tasks) {
		s.endTask(t, endFailed, "scheduler terminated", nil)
	}
	s.flushBestEffort()
	s.run.Terminate()
	s.updateStatus()
}

// abandon stops every live run and reports each unfinished item as failed.
// The resource manager is left alone since it may be what failed.
func (s *Scheduler) abandon(cause error) {
	msg := "scheduler failed: " + errors.Cause(cause).Error()
	for _, j := range sortedJobs(s.jobs) {
		if j.phase == reporting {
			continue
		}
		if j.handle != "" {
			s.run.Cancel(j.handle)
		}
		s.tryReport(reports.Error(domain.KindJob, j.id, msg))
	}
	for _, t := range sortedTasks(s.tasks) {
		if t.phase == reporting {
			continue
		}
		if t.handle != "" {
			s.run.Cancel(t.handle)
		}
		s.tryReport(reports.Error(domain.KindTask, t.id, msg))
	}
	s.jobs = make(map[string]*jobState)
	s.tasks = make(map[string]*taskState)
}

func (s *Scheduler) flushBestEffort() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RequestTimeout)
	defer cancel()
	if _, err := s.outbox.Flush(ctx); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Final report flush failed")
	}
}

// report queues r. A store failure is fatal to the loop since the server
// would otherwise never learn the outcome.
func (s *Scheduler) report(r reports.Report) {
	if err := s.outbox.Add(r); err != nil {
		panic(errors.Wrapf(err, "storing report %s", r))
	}
}

func (s *Scheduler) tryReport(r reports.Report) {
	if err := s.outbox.Add(r); err != nil {
		log.WithFields(
			log.Fields{
				"report": r.String(),
				"err":    err,
			}).Error("Lost report")
	}
}

func (s *Scheduler) wasCleared(kind domain.ItemKind, id string) bool {
	return s.cleared.Contains(reports.Key(kind, id))
}

// remember records when an item was cleared, on the same sequence as
// arrivals.
func (s *Scheduler) remember(kind domain.ItemKind, id string) {
	s.nextSeq++
	s.cleared.Add(reports.Key(kind, id), s.nextSeq)
}

// clearedAfter reports whether the item was cleared after seq.
func (s *Scheduler) clearedAfter(kind domain.ItemKind, id string, seq uint64) bool {
	v, ok := s.cleared.Peek(reports.Key(kind, id))
	if !ok {
		return false
	}
	at, _ := v.(uint64)
	return at > seq
}

// clear forgets an item for good.
func (s *Scheduler) clear(kind domain.ItemKind, id string) {
	if kind == domain.KindJob {
		delete(s.jobs, id)
	} else {
		if t, ok := s.tasks[id]; ok && t.desc != nil {
			if j, ok := s.jobs[t.desc.JobID]; ok {
				delete(j.tasks, id)
			}
		}
		delete(s.tasks, id)
	}
	s.remember(kind, id)
}

func (s *Scheduler) updateStats() {
	st := s.updateStatus()
	s.stat.Gauge(stats.SchedPendingJobsGauge).Update(int64(st.PendingJobs))
	s.stat.Gauge(stats.SchedRunningJobsGauge).Update(int64(st.RunningJobs))
	s.stat.Gauge(stats.SchedPendingTasksGauge).Update(int64(st.PendingTasks))
	s.stat.Gauge(stats.SchedRunningTasksGauge).Update(int64(st.RunningTasks))
	s.stat.Gauge(stats.SchedUnreportedItemsGauge).Update(int64(st.Unreported))
	s.stat.Gauge(stats.SchedUptime_ms).Update(int64(time.Since(s.started) / time.Millisecond))
}

func (s *Scheduler) updateStatus() Status {
	st := Status{
		Fresh:    s.fresh,
		Restarts: s.restarts,
		Nodes:    s.res.Nodes(),
		Updated:  time.Now(),
	}
	for _, j := range s.jobs {
		switch j.phase {
		case pending:
			st.PendingJobs++
		case processing:
			st.RunningJobs++
		default:
			st.Unreported++
		}
	}
	for _, t := range s.tasks {
		switch t.phase {
		case pending:
			st.PendingTasks++
		case processing:
			st.RunningTasks++
		default:
			st.Unreported++
		}
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
	return st
}
