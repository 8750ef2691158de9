// Package runner defines how the scheduler executes jobs and tasks without
// knowing where or how they run.
package runner

import (
	"fmt"

	"github.com/verisched/verisched/scheduler/domain"
)

// Handle identifies one started run.
type Handle string

type ResultState int

const (
	UNKNOWN ResultState = iota
	// The run produced a result.
	FINISHED
	// The run failed; Message says why.
	ERROR
)

func (s ResultState) String() string {
	switch s {
	case FINISHED:
		return "FINISHED"
	case ERROR:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Result is the outcome of a finished run.
type Result struct {
	State    ResultState
	Message  string
	ExitCode int
	// Description is the structured result the run wrote, if any.
	Description map[string]interface{}
	// ArchivePath points at the run's output, if it is kept.
	ArchivePath string
	// KeepDisk is disk, in bytes, still held by the run's preserved
	// working directory.
	KeepDisk int64
}

func (r Result) String() string {
	return fmt.Sprintf("%s (exit code %d): %s", r.State, r.ExitCode, r.Message)
}

func ErrorResult(format string, args ...interface{}) Result {
	return Result{State: ERROR, Message: fmt.Sprintf(format, args...)}
}

// Runner executes jobs and tasks. All methods are called from the scheduler
// loop goroutine; implementations must not block on a run.
//
// Prepare is called once per item before it may be scheduled. Solve starts
// it (possibly deferred until Flush). IsDone polls without waiting;
// ProcessResult is called once after IsDone returned true.
type Runner interface {
	PrepareJob(job *domain.JobConfiguration) error
	PrepareTask(task *domain.TaskDescription) error

	SolveJob(job *domain.JobConfiguration) (Handle, error)
	SolveTask(task *domain.TaskDescription) (Handle, error)

	// Flush starts runs a Solve call deferred.
	Flush()

	IsDone(h Handle) bool
	// ProcessResult returns FINISHED or ERROR. An error means the result
	// could not be read; the scheduler treats that as ERROR.
	ProcessResult(h Handle) (Result, error)

	// Cancel stops a run. Cancelling a finished or unknown run is a no-op.
	Cancel(h Handle)
	// Terminate stops every run; called at shutdown.
	Terminate()
}
