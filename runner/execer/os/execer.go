// Package os runs commands as real processes. Each command gets its own
// process group so that aborting it also stops whatever it spawned.
package os

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/verisched/verisched/common/log/tags"
	"github.com/verisched/verisched/runner/execer"
)

// DefaultAbortTimeout is how long an aborted process may take to exit after
// SIGTERM before its process group is killed.
const DefaultAbortTimeout = 10 * time.Second

type osExecer struct {
	abortTimeout time.Duration
}

func NewExecer() execer.Execer {
	return NewBoundedExecer(DefaultAbortTimeout)
}

func NewBoundedExecer(abortTimeout time.Duration) execer.Execer {
	if abortTimeout <= 0 {
		abortTimeout = DefaultAbortTimeout
	}
	return &osExecer{abortTimeout: abortTimeout}
}

func (e *osExecer) Exec(command execer.Command) (execer.Process, error) {
	if len(command.Argv) == 0 {
		return nil, errors.New("no command specified")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = os.Environ()
	for k, v := range command.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// the process group id becomes the child's pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = orDiscard(command.Stdout)
	cmd.Stderr = orDiscard(command.Stderr)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %v", command.Argv)
	}
	p := &process{
		cmd:          cmd,
		done:         make(chan struct{}),
		abortTimeout: e.abortTimeout,
		LogTags:      command.LogTags,
	}
	go p.wait()

	p.Entry().WithFields(log.Fields{"pid": cmd.Process.Pid, "argv": command.Argv}).Info("started process")
	return p, nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

type process struct {
	cmd          *exec.Cmd
	done         chan struct{}
	abortTimeout time.Duration
	tags.LogTags

	mu      sync.Mutex
	status  execer.ProcessStatus
	aborted bool
}

// wait reaps the process exactly once and publishes its status.
func (p *process) wait() {
	err := p.cmd.Wait()
	st := execer.ProcessStatus{State: execer.COMPLETE}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() >= 0 {
			st.ExitCode = exitErr.ExitCode()
		} else {
			st.State = execer.FAILED
			st.ExitCode = -1
			st.Error = err.Error()
		}
	}

	st = p.finish(st)

	p.Entry().WithFields(log.Fields{
		"pid":      p.cmd.Process.Pid,
		"state":    st.State.String(),
		"exitCode": st.ExitCode,
	}).Info("process finished")
}

// finish publishes st unless an abort was recorded first, and returns the
// status that stands.
func (p *process) finish(st execer.ProcessStatus) execer.ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.aborted {
		st = p.status
	}
	p.status = st
	close(p.done)
	return st
}

// markAborted records an abort, or returns false if the process already
// finished on its own.
func (p *process) markAborted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return false
	default:
	}
	p.aborted = true
	p.status = execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: "aborted"}
	return true
}

func (p *process) Wait() execer.ProcessStatus {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Abort sends SIGTERM to the process group and SIGKILL once the abort
// timeout passes.
func (p *process) Abort() execer.ProcessStatus {
	if !p.markAborted() {
		return p.Wait()
	}

	pgid := p.cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		p.Entry().WithFields(log.Fields{"pgid": pgid, "err": err}).Warn("SIGTERM failed")
	}
	select {
	case <-p.done:
		p.mu.Lock()
		p.status.Error += " (SIGTERM)"
		p.mu.Unlock()
	case <-time.After(p.abortTimeout):
		p.Entry().WithFields(log.Fields{"pgid": pgid}).Warn("process ignored SIGTERM, killing its group")
		if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
			p.Entry().WithFields(log.Fields{"pgid": pgid, "err": err}).Error("SIGKILL failed")
		}
		<-p.done
		p.mu.Lock()
		p.status.Error += " (SIGKILL)"
		p.mu.Unlock()
	}
	return p.Wait()
}
