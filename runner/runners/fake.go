package runners

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/scheduler/domain"
)

type fakeRun struct {
	id        string
	kind      domain.ItemKind
	flushed   bool
	done      bool
	result    runner.Result
	resultErr error
	panics    bool
	cancelled bool
}

// FakeRunner runs nothing. Tests finish its runs with Complete or Fail.
// It is safe for concurrent use so tests can drive it while the scheduler
// loop polls it.
type FakeRunner struct {
	mu sync.Mutex

	prepareErrs map[string]error
	solveErrs   map[string]error
	runs        map[runner.Handle]*fakeRun
	byID        map[string]runner.Handle
	next        int

	prepared   []string
	cancelled  []string
	processed  []string
	terminated bool
}

var _ runner.Runner = (*FakeRunner)(nil)

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		prepareErrs: make(map[string]error),
		solveErrs:   make(map[string]error),
		runs:        make(map[runner.Handle]*fakeRun),
		byID:        make(map[string]runner.Handle),
	}
}

// FailPrepare makes preparation of id fail with err.
func (f *FakeRunner) FailPrepare(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepareErrs[id] = err
}

// FailSolve makes starting id fail with err.
func (f *FakeRunner) FailSolve(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solveErrs[id] = err
}

func (f *FakeRunner) PrepareJob(job *domain.JobConfiguration) error {
	return f.prepare(job.ID)
}

func (f *FakeRunner) PrepareTask(task *domain.TaskDescription) error {
	return f.prepare(task.ID)
}

func (f *FakeRunner) prepare(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.prepareErrs[id]; err != nil {
		return err
	}
	f.prepared = append(f.prepared, id)
	return nil
}

func (f *FakeRunner) SolveJob(job *domain.JobConfiguration) (runner.Handle, error) {
	return f.solve(job.ID, domain.KindJob)
}

func (f *FakeRunner) SolveTask(task *domain.TaskDescription) (runner.Handle, error) {
	return f.solve(task.ID, domain.KindTask)
}

func (f *FakeRunner) solve(id string, kind domain.ItemKind) (runner.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.solveErrs[id]; err != nil {
		return "", err
	}
	f.next++
	h := runner.Handle(fmt.Sprintf("fake-%d", f.next))
	f.runs[h] = &fakeRun{id: id, kind: kind}
	f.byID[id] = h
	return h, nil
}

func (f *FakeRunner) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.runs {
		r.flushed = true
	}
}

func (f *FakeRunner) IsDone(h runner.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[h]
	return !ok || r.done
}

func (f *FakeRunner) ProcessResult(h runner.Handle) (runner.Result, error) {
	f.mu.Lock()
	r, ok := f.runs[h]
	if ok {
		delete(f.runs, h)
		f.processed = append(f.processed, r.id)
	}
	f.mu.Unlock()
	if !ok {
		return runner.Result{}, errors.Errorf("unknown run %s", h)
	}
	if r.panics {
		panic("result of " + r.id + " cannot be processed")
	}
	return r.result, r.resultErr
}

func (f *FakeRunner) Cancel(h runner.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[h]
	if !ok {
		return
	}
	r.cancelled = true
	f.cancelled = append(f.cancelled, r.id)
	delete(f.runs, h)
}

func (f *FakeRunner) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, r := range f.runs {
		f.cancelled = append(f.cancelled, r.id)
		delete(f.runs, h)
	}
	f.terminated = true
}

// Complete finishes the run of id with result. It returns false if id is not running.
func (f *FakeRunner) Complete(id string, result runner.Result) bool {
	return f.finish(id, func(r *fakeRun) { r.result = result })
}

// Fail finishes the run of id so that reading its result fails with err.
func (f *FakeRunner) Fail(id string, err error) bool {
	return f.finish(id, func(r *fakeRun) { r.resultErr = err })
}

// Explode finishes the run of id so that reading its result panics.
func (f *FakeRunner) Explode(id string) bool {
	return f.finish(id, func(r *fakeRun) { r.panics = true })
}

func (f *FakeRunner) finish(id string, set func(*fakeRun)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[f.byID[id]]
	if !ok {
		return false
	}
	set(r)
	r.done = true
	return true
}

// Running reports whether id has a live run.
func (f *FakeRunner) Running(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.runs[f.byID[id]]
	return ok
}

// Flushed reports whether the run of id went through a Flush.
func (f *FakeRunner) Flushed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[f.byID[id]]
	return ok && r.flushed
}

func (f *FakeRunner) Prepared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prepared...)
}

func (f *FakeRunner) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *FakeRunner) Processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processed...)
}

func (f *FakeRunner) Terminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}
