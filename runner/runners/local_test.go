package runners

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisched/verisched/runner"
	"github.com/verisched/verisched/runner/execer/execers"
	"github.com/verisched/verisched/scheduler/domain"
)

func setupLocalRunner(t *testing.T, taskCommand []string, maxProcesses int, keep bool) (*LocalRunner, *execers.SimExecer, string) {
	workDir := t.TempDir()
	ex := execers.NewSimExecer()
	r, err := NewLocalRunner(LocalConfig{
		WorkDir:      workDir,
		JobCommand:   []string{"#job {description}", "complete 0"},
		TaskCommand:  taskCommand,
		MaxProcesses: maxProcesses,
		KeepWorkDirs: keep,
	}, ex, nil)
	require.NoError(t, err)
	return r, ex, workDir
}

func testTask(id string) *domain.TaskDescription {
	return &domain.TaskDescription{
		ID:       id,
		JobID:    "job1",
		Priority: domain.LOW,
		Limits:   domain.ResourceLimits{CPUCores: 1, MemorySize: domain.GiB, DiskSize: domain.GiB},
	}
}

func startTask(t *testing.T, r *LocalRunner, id string) runner.Handle {
	task := testTask(id)
	require.NoError(t, r.PrepareTask(task))
	h, err := r.SolveTask(task)
	require.NoError(t, err)
	r.Flush()
	return h
}

func waitDone(t *testing.T, r *LocalRunner, h runner.Handle) {
	deadline := time.Now().Add(5 * time.Second)
	for !r.IsDone(h) {
		if time.Now().After(deadline) {
			t.Fatalf("run %s did not finish", h)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func Test_LocalRunner_Finished(t *testing.T) {
	r, _, workDir := setupLocalRunner(t, []string{"#verifier {description}", `write result.json {"verdict": "safe"}`, "complete 0"}, 2, false)

	task := testTask("task1")
	require.NoError(t, r.PrepareTask(task))
	data, err := os.ReadFile(filepath.Join(workDir, "tasks", "task1", DescriptionFile))
	require.NoError(t, err)
	parsed, err := domain.ParseTaskDescription(data)
	require.NoError(t, err)
	assert.Equal(t, task.Limits, parsed.Limits)

	h, err := r.SolveTask(task)
	require.NoError(t, err)
	assert.False(t, r.IsDone(h), "queued runs are not done")
	r.Flush()
	waitDone(t, r, h)

	result, err := r.ProcessResult(h)
	require.NoError(t, err)
	assert.Equal(t, runner.FINISHED, result.State)
	assert.Equal(t, "safe", result.Description["verdict"])
	assert.Zero(t, result.KeepDisk)
	_, err = os.Stat(filepath.Join(workDir, "tasks", "task1"))
	assert.True(t, os.IsNotExist(err))

	_, err = r.ProcessResult(h)
	assert.Error(t, err, "a result is read once")
}

func Test_LocalRunner_NonZeroExitWithoutResult(t *testing.T) {
	r, _, _ := setupLocalRunner(t, []string{"#verifier {description}", "stderr segmentation fault", "complete 2"}, 2, false)
	h := startTask(t, r, "task1")
	waitDone(t, r, h)

	result, err := r.ProcessResult(h)
	require.NoError(t, err)
	assert.Equal(t, runner.ERROR, result.State)
	assert.Equal(t, 2, result.ExitCode)
	assert.Contains(t, result.Message, "exited with code 2")
	assert.Contains(t, result.Message, "no result file")
	assert.Equal(t, 0, r.Running())
}

func Test_LocalRunner_BadResultFiles(t *testing.T) {
	r, _, _ := setupLocalRunner(t, []string{"#verifier {description}", "complete 0"}, 2, false)
	h := startTask(t, r, "task1")
	waitDone(t, r, h)
	result, err := r.ProcessResult(h)
	require.NoError(t, err)
	assert.Equal(t, runner.ERROR, result.State)
	assert.Contains(t, result.Message, "left no result file")

	r, _, _ = setupLocalRunner(t, []string{"#verifier {description}", "write result.json {not json", "complete 0"}, 2, false)
	h = startTask(t, r, "task2")
	waitDone(t, r, h)
	result, err = r.ProcessResult(h)
	require.NoError(t, err)
	assert.Equal(t, runner.ERROR, result.State)
	assert.Contains(t, result.Message, "corrupt result file")
}

func Test_LocalRunner_ProcessPool(t *testing.T) {
	r, ex, _ := setupLocalRunner(t, []string{"#verifier {description}", "pause", `write result.json {}`, "complete 0"}, 1, false)

	h1 := startTask(t, r, "task1")
	h2 := startTask(t, r, "task2")
	assert.Equal(t, 1, r.Running())
	assert.False(t, r.IsDone(h2))

	ex.Resume()
	waitDone(t, r, h1)
	assert.Equal(t, 0, r.Running())
	r.Flush()
	assert.Equal(t, 1, r.Running())

	ex.Resume()
	waitDone(t, r, h2)
	result, err := r.ProcessResult(h2)
	require.NoError(t, err)
	assert.Equal(t, runner.FINISHED, result.State)
}

func Test_LocalRunner_Cancel(t *testing.T) {
	r, _, workDir := setupLocalRunner(t, []string{"#verifier {description}", "pause", "complete 0"}, 1, false)

	running := startTask(t, r, "task1")
	queued := startTask(t, r, "task2")
	r.Cancel(queued)
	_, err := os.Stat(filepath.Join(workDir, "tasks", "task2"))
	assert.True(t, os.IsNotExist(err))

	r.Cancel(running)
	r.Cancel(running)
	deadline := time.Now().Add(5 * time.Second)
	for r.Running() > 0 {
		require.True(t, time.Now().Before(deadline), "slot of cancelled run not reclaimed")
		time.Sleep(5 * time.Millisecond)
		r.Flush()
	}
	_, err = r.ProcessResult(running)
	assert.Error(t, err)
}

func Test_LocalRunner_KeepWorkDirs(t *testing.T) {
	r, _, workDir := setupLocalRunner(t, []string{"#verifier {description}", `write result.json {"verdict": "unsafe"}`, "complete 0"}, 1, true)
	h := startTask(t, r, "task1")
	waitDone(t, r, h)

	result, err := r.ProcessResult(h)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "tasks", "task1"), result.ArchivePath)
	assert.True(t, result.KeepDisk > 0)
	_, err = os.Stat(filepath.Join(result.ArchivePath, OutputFile))
	assert.NoError(t, err)
}

func Test_LocalRunner_Errors(t *testing.T) {
	_, err := NewLocalRunner(LocalConfig{WorkDir: t.TempDir(), MaxProcesses: 1}, execers.NewSimExecer(), nil)
	assert.Error(t, err)

	r, _, _ := setupLocalRunner(t, []string{"explode"}, 1, false)
	_, err = r.SolveTask(testTask("unprepared"))
	assert.Error(t, err)

	// the simulated command cannot be parsed, so the run fails to start
	h := startTask(t, r, "task1")
	waitDone(t, r, h)
	result, err := r.ProcessResult(h)
	require.NoError(t, err)
	assert.Equal(t, runner.ERROR, result.State)
	assert.Contains(t, result.Message, "run failed")
}

func Test_LocalRunner_Terminate(t *testing.T) {
	r, _, workDir := setupLocalRunner(t, []string{"#verifier {description}", "pause", "complete 0"}, 1, false)
	startTask(t, r, "task1")
	startTask(t, r, "task2")
	r.Terminate()
	assert.Equal(t, 0, r.Running())
	entries, err := os.ReadDir(filepath.Join(workDir, "tasks"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_CommandLine(t *testing.T) {
	assert.Equal(t, []string{"verifier", "--in", "/d.json"}, commandLine([]string{"verifier", "--in"}, "/d.json"))
	assert.Equal(t, []string{"verifier", "--in=/d.json", "-v"}, commandLine([]string{"verifier", "--in={description}", "-v"}, "/d.json"))
}

func Test_LocalRunner_ExternalLoad(t *testing.T) {
	r, ex, _ := setupLocalRunner(t, []string{"#verifier {description}", "pause", "complete 0"}, 2, false)
	load := 3.4
	var loadErr error
	r.loadAvg = func() (float64, error) { return load, loadErr }
	assert.Equal(t, 3, r.ExternalLoad())

	h := startTask(t, r, "task1")
	require.Equal(t, 1, r.Running())
	assert.Equal(t, 2, r.ExternalLoad(), "own runs are not external")

	load = 0.6
	assert.Equal(t, 0, r.ExternalLoad())

	loadErr = errors.New("no /proc")
	load = 8
	assert.Equal(t, 0, r.ExternalLoad())

	ex.Resume()
	waitDone(t, r, h)
}
