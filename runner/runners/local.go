// Package runners holds Runner implementations.
package runners

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/load"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/async"
	"github.com/verisched/verisched/common/log/tags"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/runner/execer"
	"github.com/verisched/verisched/scheduler/domain"
)

const (
	DefaultResultFile = "result.json"
	DescriptionFile   = "description.json"
	OutputFile        = "output.log"

	// DescriptionPlaceholder in a command argument is replaced with the
	// description path. Without one the path is appended.
	DescriptionPlaceholder = "{description}"
)

type LocalConfig struct {
	// Root of the per-item working directories.
	WorkDir string
	// Command lines; see DescriptionPlaceholder.
	JobCommand  []string
	TaskCommand []string
	// Runs executing at once; more are queued.
	MaxProcesses int
	// Preserve working directories after the run.
	KeepWorkDirs bool
	// Name of the file a run writes its result to, in its working directory.
	ResultFile string
}

func (c LocalConfig) validate() error {
	if c.WorkDir == "" {
		return errors.New("local runner needs a working directory")
	}
	if len(c.JobCommand) == 0 || len(c.TaskCommand) == 0 {
		return errors.New("local runner needs a job and a task command")
	}
	if c.MaxProcesses <= 0 {
		return errors.Errorf("local runner needs a positive process limit, got %d", c.MaxProcesses)
	}
	return nil
}

type localRun struct {
	handle runner.Handle
	kind   domain.ItemKind
	id     string
	dir    string
	argv   []string

	proc      execer.Process
	output    *os.File
	status    execer.ProcessStatus
	done      *async.AsyncError
	started   bool
	slot      bool
	cancelled bool
}

func (r *localRun) logTags() tags.LogTags {
	t := tags.LogTags{Tag: string(r.handle)}
	if r.kind == domain.KindJob {
		t.JobID = r.id
	} else {
		t.TaskID = r.id
	}
	return t
}

// LocalRunner runs jobs and tasks as processes on this host, each in its own
// working directory:
//
//	<WorkDir>/jobs/<id>/description.json
//	<WorkDir>/tasks/<id>/description.json
//
// A run gets the description path on its command line, writes its output to
// output.log and its result to the result file. At most MaxProcesses runs
// execute at once; Solve queues and Flush starts what fits.
type LocalRunner struct {
	config LocalConfig
	ex     execer.Execer
	stat   stats.StatsReceiver

	prepared map[string]string
	queue    []*localRun
	runs     map[runner.Handle]*localRun
	running  int

	loadAvg func() (float64, error)
}

var _ runner.Runner = (*LocalRunner)(nil)

func NewLocalRunner(config LocalConfig, ex execer.Execer, stat stats.StatsReceiver) (*LocalRunner, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.ResultFile == "" {
		config.ResultFile = DefaultResultFile
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	for _, sub := range []string{"jobs", "tasks"} {
		if err := os.MkdirAll(filepath.Join(config.WorkDir, sub), 0755); err != nil {
			return nil, errors.Wrap(err, "creating working directory")
		}
	}
	return &LocalRunner{
		config:   config,
		ex:       ex,
		stat:     stat.Scope("runner"),
		prepared: make(map[string]string),
		runs:     make(map[runner.Handle]*localRun),
		loadAvg:  hostLoad,
	}, nil
}

func hostLoad() (float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

func preparedKey(kind domain.ItemKind, id string) string {
	return kind.String() + "/" + id
}

func (l *LocalRunner) itemDir(kind domain.ItemKind, id string) string {
	return filepath.Join(l.config.WorkDir, kind.String()+"s", id)
}

func (l *LocalRunner) PrepareJob(job *domain.JobConfiguration) error {
	return l.prepare(domain.KindJob, job.ID, job)
}

func (l *LocalRunner) PrepareTask(task *domain.TaskDescription) error {
	return l.prepare(domain.KindTask, task.ID, task)
}

func (l *LocalRunner) prepare(kind domain.ItemKind, id string, description interface{}) error {
	dir := l.itemDir(kind, id)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "clearing working directory of %s %s", kind, id)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating working directory of %s %s", kind, id)
	}
	data, err := json.MarshalIndent(description, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding description of %s %s", kind, id)
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptionFile), data, 0644); err != nil {
		return errors.Wrapf(err, "writing description of %s %s", kind, id)
	}
	l.prepared[preparedKey(kind, id)] = dir
	return nil
}

func (l *LocalRunner) SolveJob(job *domain.JobConfiguration) (runner.Handle, error) {
	return l.solve(domain.KindJob, job.ID, l.config.JobCommand)
}

func (l *LocalRunner) SolveTask(task *domain.TaskDescription) (runner.Handle, error) {
	return l.solve(domain.KindTask, task.ID, l.config.TaskCommand)
}

func (l *LocalRunner) solve(kind domain.ItemKind, id string, command []string) (runner.Handle, error) {
	dir, ok := l.prepared[preparedKey(kind, id)]
	if !ok {
		return "", errors.Errorf("%s %s was not prepared", kind, id)
	}
	u, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "generating run handle")
	}
	argv := commandLine(command, filepath.Join(dir, DescriptionFile))

	r := &localRun{
		handle: runner.Handle(u.String()),
		kind:   kind,
		id:     id,
		dir:    dir,
		argv:   argv,
		done:   async.NewAsyncError(),
	}
	delete(l.prepared, preparedKey(kind, id))
	l.runs[r.handle] = r
	l.queue = append(l.queue, r)
	l.updateStats()
	r.logTags().Entry().Debug("run queued")
	return r.handle, nil
}

// Flush reclaims slots of cancelled runs and starts queued runs while slots
// are free.
func (l *LocalRunner) Flush() {
	for h, r := range l.runs {
		if r.cancelled && l.finished(r) {
			l.cleanup(r, false)
			delete(l.runs, h)
		}
	}
	for len(l.queue) > 0 && l.running < l.config.MaxProcesses {
		r := l.queue[0]
		l.queue = l.queue[1:]
		l.start(r)
	}
	l.updateStats()
}

func (l *LocalRunner) start(r *localRun) {
	r.started = true
	output, err := os.Create(filepath.Join(r.dir, OutputFile))
	if err != nil {
		l.failStart(r, errors.Wrap(err, "creating output file"))
		return
	}
	r.output = output
	proc, err := l.ex.Exec(execer.Command{
		Argv:    r.argv,
		Dir:     r.dir,
		Stdout:  output,
		Stderr:  output,
		LogTags: r.logTags(),
	})
	if err != nil {
		l.failStart(r, err)
		return
	}
	r.proc = proc
	r.slot = true
	l.running++
	go func() {
		r.status = proc.Wait()
		r.done.SetValue(nil)
	}()
}

func (l *LocalRunner) failStart(r *localRun, err error) {
	r.logTags().Entry().WithError(err).Error("run could not be started")
	r.status = execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: err.Error()}
	r.done.SetValue(nil)
}

// finished polls r and frees its slot once it is done.
func (l *LocalRunner) finished(r *localRun) bool {
	if !r.started {
		return false
	}
	done, _ := r.done.TryGetValue()
	if done && r.slot {
		r.slot = false
		l.running--
	}
	return done
}

func (l *LocalRunner) IsDone(h runner.Handle) bool {
	r, ok := l.runs[h]
	if !ok {
		return true
	}
	return l.finished(r)
}

func (l *LocalRunner) ProcessResult(h runner.Handle) (runner.Result, error) {
	r, ok := l.runs[h]
	if !ok {
		return runner.Result{}, errors.Errorf("unknown run %s", h)
	}
	if !l.finished(r) {
		return runner.Result{}, errors.Errorf("run %s has not finished", h)
	}
	delete(l.runs, h)

	result := l.readResult(r)
	keep := l.config.KeepWorkDirs
	l.cleanup(r, keep)
	if keep {
		result.ArchivePath = r.dir
		size, err := dirSize(r.dir)
		if err != nil {
			r.logTags().Entry().WithError(err).Warn("could not size preserved working directory")
		}
		result.KeepDisk = size
	}
	r.logTags().Entry().WithFields(log.Fields{"result": result.String()}).Info("run finished")
	return result, nil
}

func (l *LocalRunner) readResult(r *localRun) runner.Result {
	st := r.status
	if st.State == execer.FAILED {
		return runner.Result{State: runner.ERROR, ExitCode: st.ExitCode, Message: "run failed: " + st.Error}
	}

	path := filepath.Join(r.dir, l.config.ResultFile)
	data, readErr := os.ReadFile(path)
	if st.ExitCode != 0 {
		msg := fmt.Sprintf("%s %s exited with code %d", r.kind, r.id, st.ExitCode)
		if readErr != nil {
			msg += fmt.Sprintf(" and left no result file %s", l.config.ResultFile)
		}
		return runner.Result{State: runner.ERROR, ExitCode: st.ExitCode, Message: msg}
	}
	if readErr != nil {
		return runner.Result{State: runner.ERROR,
			Message: fmt.Sprintf("%s %s left no result file %s: %v", r.kind, r.id, l.config.ResultFile, readErr)}
	}
	description := map[string]interface{}{}
	if err := json.Unmarshal(data, &description); err != nil {
		return runner.Result{State: runner.ERROR,
			Message: fmt.Sprintf("%s %s wrote a corrupt result file %s: %v", r.kind, r.id, l.config.ResultFile, err)}
	}
	return runner.Result{State: runner.FINISHED, Description: description}
}

func (l *LocalRunner) cleanup(r *localRun, keep bool) {
	if r.output != nil {
		r.output.Close()
		r.output = nil
	}
	if keep {
		return
	}
	if err := os.RemoveAll(r.dir); err != nil {
		r.logTags().Entry().WithError(err).Warn("could not remove working directory")
	}
}

// Cancel aborts a run in the background. Its slot is reclaimed by a later
// Flush once the process is gone.
func (l *LocalRunner) Cancel(h runner.Handle) {
	r, ok := l.runs[h]
	if !ok || r.cancelled {
		return
	}
	r.cancelled = true
	r.logTags().Entry().Info("cancelling run")
	if !r.started {
		for i, q := range l.queue {
			if q == r {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				break
			}
		}
		delete(l.runs, h)
		l.cleanup(r, false)
		l.updateStats()
		return
	}
	if r.proc != nil {
		go r.proc.Abort()
	}
}

// Terminate aborts every run and waits for them to end.
func (l *LocalRunner) Terminate() {
	var wg sync.WaitGroup
	for _, r := range l.runs {
		if r.proc == nil {
			continue
		}
		wg.Add(1)
		go func(p execer.Process) {
			defer wg.Done()
			p.Abort()
		}(r.proc)
	}
	wg.Wait()
	for h, r := range l.runs {
		l.cleanup(r, false)
		delete(l.runs, h)
	}
	l.queue = nil
	l.running = 0
	l.updateStats()
	log.Info("local runner terminated")
}

// Running counts runs holding a process slot.
func (l *LocalRunner) Running() int {
	return l.running
}

// ExternalLoad estimates the process slots taken by work this runner did
// not start: the host's one-minute load average less its own runs. It is 0
// when the load cannot be read.
func (l *LocalRunner) ExternalLoad() int {
	avg, err := l.loadAvg()
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("Cannot read host load")
		return 0
	}
	ext := int(math.Round(avg)) - l.running
	if ext < 0 {
		return 0
	}
	return ext
}

func (l *LocalRunner) updateStats() {
	l.stat.Gauge(stats.RunnerQueuedGauge).Update(int64(len(l.queue)))
	l.stat.Gauge(stats.RunnerRunningGauge).Update(int64(l.running))
}

func commandLine(command []string, description string) []string {
	argv := make([]string, 0, len(command)+1)
	substituted := false
	for _, arg := range command {
		if strings.Contains(arg, DescriptionPlaceholder) {
			arg = strings.Replace(arg, DescriptionPlaceholder, description, -1)
			substituted = true
		}
		argv = append(argv, arg)
	}
	if !substituted {
		argv = append(argv, description)
	}
	return argv
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
