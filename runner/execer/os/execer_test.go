package os

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/runner/execer"
)

func TestExec_ExitCodeAndOutput(t *testing.T) {
	var stdout bytes.Buffer
	e := NewExecer()
	p, err := e.Exec(execer.Command{Argv: []string{"sh", "-c", "echo hello; exit 3"}, Stdout: &stdout})
	require.NoError(t, err)

	st := p.Wait()
	assert.Equal(t, execer.COMPLETE, st.State)
	assert.Equal(t, 3, st.ExitCode)
	assert.Equal(t, "hello\n", stdout.String())

	// aborting a finished process changes nothing
	assert.Equal(t, st, p.Abort())
}

func TestExec_Dir(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	p, err := NewExecer().Exec(execer.Command{Argv: []string{"pwd"}, Dir: dir, Stdout: &stdout})
	require.NoError(t, err)
	require.Equal(t, execer.COMPLETE, p.Wait().State)
	assert.Contains(t, stdout.String(), dir)
}

func TestExec_Abort(t *testing.T) {
	p, err := NewBoundedExecer(2 * time.Second).Exec(execer.Command{Argv: []string{"sleep", "30"}})
	require.NoError(t, err)

	start := time.Now()
	st := p.Abort()
	assert.Equal(t, execer.FAILED, st.State)
	assert.Contains(t, st.Error, "aborted")
	assert.True(t, time.Since(start) < 10*time.Second)
	assert.Equal(t, st, p.Wait())
}

func TestExec_AbortKillsIgnoringProcess(t *testing.T) {
	p, err := NewBoundedExecer(100 * time.Millisecond).Exec(execer.Command{
		Argv: []string{"sh", "-c", "trap '' TERM; sleep 30"},
	})
	require.NoError(t, err)
	// give the shell time to install the trap
	time.Sleep(200 * time.Millisecond)

	st := p.Abort()
	assert.Equal(t, execer.FAILED, st.State)
	assert.Contains(t, st.Error, "SIGKILL")
}

func TestExec_Errors(t *testing.T) {
	_, err := NewExecer().Exec(execer.Command{})
	assert.Error(t, err)
	_, err = NewExecer().Exec(execer.Command{Argv: []string{"/nonexistent/binary"}})
	assert.Error(t, err)
}

func TestExec_ExitBeforeAbortStands(t *testing.T) {
	p := &process{done: make(chan struct{})}
	exited := execer.ProcessStatus{State: execer.COMPLETE}
	assert.Equal(t, exited, p.finish(exited))
	assert.False(t, p.markAborted())
	assert.Equal(t, exited, p.Wait())
	assert.Equal(t, exited, p.Abort(), "no signal is sent once the exit is published")
}

func TestExec_AbortBeforeExitStands(t *testing.T) {
	p := &process{done: make(chan struct{})}
	require.True(t, p.markAborted())
	st := p.finish(execer.ProcessStatus{State: execer.COMPLETE})
	assert.Equal(t, execer.FAILED, st.State)
	assert.Equal(t, "aborted", st.Error)
	assert.False(t, p.markAborted())
	assert.Equal(t, st, p.Wait())
}

func TestExec_AbortRacingExit(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := NewBoundedExecer(time.Second).Exec(execer.Command{Argv: []string{"true"}})
		require.NoError(t, err)
		st := p.Abort()
		if st.State == execer.COMPLETE {
			assert.Equal(t, 0, st.ExitCode)
			assert.Empty(t, st.Error)
		} else {
			assert.Contains(t, st.Error, "aborted")
		}
		assert.Equal(t, st, p.Wait())
	}
}
