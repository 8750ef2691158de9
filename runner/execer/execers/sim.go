// Package execers holds execers that do not start real processes.
package execers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/verisched/verisched/runner/execer"
)

// SimExecer execs by simulating argv. Each arg is one step, run in order.
// Valid steps are:
//
//	complete <exitcode int>   exit with exitcode
//	pause                     wait until Resume() is called (or abort)
//	sleep <millis int>        sleep for millis milliseconds
//	stdout <message>          write message to stdout
//	stderr <message>          write message to stderr
//	write <file> <content>    write content to file in the command's Dir
//
// Arguments starting with '#' are ignored, so argv[0] may name the
// simulated program. A process that runs out of steps exits with 0.
type SimExecer struct {
	resumeCh chan struct{}
}

func NewSimExecer() *SimExecer {
	return &SimExecer{resumeCh: make(chan struct{})}
}

// Resume lets one paused process continue.
func (e *SimExecer) Resume() {
	e.resumeCh <- struct{}{}
}

func (e *SimExecer) Exec(command execer.Command) (execer.Process, error) {
	steps := make([]step, 0, len(command.Argv))
	for _, arg := range command.Argv {
		s, err := e.parse(arg)
		if err != nil {
			return nil, err
		}
		if s != nil {
			steps = append(steps, s)
		}
	}
	p := &simProcess{
		command: command,
		status:  execer.ProcessStatus{State: execer.RUNNING},
		ended:   make(chan struct{}),
	}
	go p.run(steps)
	return p, nil
}

// step runs one simulated instruction. A non-nil status ends the process.
type step func(p *simProcess) *execer.ProcessStatus

func exited(code int) *execer.ProcessStatus {
	return &execer.ProcessStatus{State: execer.COMPLETE, ExitCode: code}
}

func failed(msg string) *execer.ProcessStatus {
	return &execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: msg}
}

// parse returns nil for comments.
func (e *SimExecer) parse(arg string) (step, error) {
	if strings.HasPrefix(arg, "#") {
		return nil, nil
	}
	opcode, rest, _ := strings.Cut(arg, " ")
	switch opcode {
	case "complete":
		code, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in complete <n>: %v", err)
		}
		return func(*simProcess) *execer.ProcessStatus { return exited(code) }, nil
	case "pause":
		return func(p *simProcess) *execer.ProcessStatus {
			select {
			case <-p.ended:
			case <-e.resumeCh:
			}
			return nil
		}, nil
	case "sleep":
		millis, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("error parsing <n> in sleep <n>: %v", err)
		}
		return func(*simProcess) *execer.ProcessStatus {
			time.Sleep(time.Duration(millis) * time.Millisecond)
			return nil
		}, nil
	case "stdout", "stderr":
		toStderr := opcode == "stderr"
		return func(p *simProcess) *execer.ProcessStatus {
			w := p.command.Stdout
			if toStderr {
				w = p.command.Stderr
			}
			if w != nil {
				io.WriteString(w, rest)
			}
			return nil
		}, nil
	case "write":
		file, content, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, fmt.Errorf("expected write <file> <content>: %v", arg)
		}
		return func(p *simProcess) *execer.ProcessStatus {
			if err := os.WriteFile(filepath.Join(p.command.Dir, file), []byte(content), 0644); err != nil {
				return failed(err.Error())
			}
			return nil
		}, nil
	}
	return nil, fmt.Errorf("can't simulate arg: %v", arg)
}

type simProcess struct {
	command execer.Command

	mu     sync.Mutex
	status execer.ProcessStatus
	// Closed once status is final.
	ended chan struct{}
}

func (p *simProcess) run(steps []step) {
	for _, s := range steps {
		if p.isDone() {
			return
		}
		if st := s(p); st != nil {
			p.finish(*st)
			return
		}
	}
	p.finish(*exited(0))
}

func (p *simProcess) isDone() bool {
	select {
	case <-p.ended:
		return true
	default:
		return false
	}
}

// finish sets the final status. Only the first call counts.
func (p *simProcess) finish(st execer.ProcessStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.State.IsDone() {
		return
	}
	p.status = st
	close(p.ended)
}

func (p *simProcess) Wait() execer.ProcessStatus {
	<-p.ended
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *simProcess) Abort() execer.ProcessStatus {
	p.finish(*failed("aborted"))
	return p.Wait()
}
