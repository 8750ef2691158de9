// Package execer runs one command. It knows nothing about jobs or tasks;
// it sits at the level of os/exec and exists so that real processes can be
// swapped for simulated ones.
package execer

import (
	"io"

	"github.com/verisched/verisched/common/log/tags"
)

type Command struct {
	Argv []string
	// Working directory; empty means the current one.
	Dir     string
	EnvVars map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
	tags.LogTags
}

type ProcessState int

const (
	UNKNOWN ProcessState = iota
	RUNNING
	COMPLETE
	FAILED
)

func (s ProcessState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s ProcessState) String() string {
	switch s {
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	}
	return "UNKNOWN"
}

type Execer interface {
	Exec(command Command) (Process, error)
}

type Process interface {
	// Wait blocks until the process ends.
	Wait() ProcessStatus
	// Abort stops the process and everything it started. Safe to call
	// after the process ended.
	Abort() ProcessStatus
}

// ProcessStatus is how a process ended. COMPLETE means it exited on its own,
// with ExitCode; FAILED means it could not be run or was aborted, see Error.
type ProcessStatus struct {
	State    ProcessState
	ExitCode int
	Error    string
}
