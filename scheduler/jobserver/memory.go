package jobserver

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/verisched/verisched/scheduler/domain"
)

// Submission is one status, error or solution the scheduler pushed.
type Submission struct {
	Kind       domain.ItemKind
	ID         string
	JobStatus  domain.Status
	TaskStatus domain.TaskStatus
	// Error is set for error submissions.
	Error string
	// Solution is set for solution submissions.
	Solution    map[string]interface{}
	ArchivePath string
	ArchiveSize int64
}

// MemoryServer is a JobServer kept in memory. It records every submission
// and can be made to fail, for tests and single-host setups.
type MemoryServer struct {
	mu sync.Mutex

	jobs        map[string]*domain.JobConfiguration
	tasks       map[string]*domain.TaskDescription
	jobStatus   map[string]domain.Status
	taskStatus  map[string]domain.TaskStatus
	submissions []Submission
	nodes       []domain.NodeConfiguration
	nodeCalls   int
	tools       []domain.Tool
	toolCalls   int
	err         error
	calls       int
}

var _ JobServer = (*MemoryServer)(nil)

func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		jobs:       make(map[string]*domain.JobConfiguration),
		tasks:      make(map[string]*domain.TaskDescription),
		jobStatus:  make(map[string]domain.Status),
		taskStatus: make(map[string]domain.TaskStatus),
	}
}

// AddJob registers a PENDING job.
func (m *MemoryServer) AddJob(job *domain.JobConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.jobStatus[job.ID] = domain.Pending
}

// AddTask registers a PENDING task.
func (m *MemoryServer) AddTask(task *domain.TaskDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	m.taskStatus[task.ID] = domain.TaskPending
}

func (m *MemoryServer) SetJobStatus(id string, st domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobStatus[id] = st
}

func (m *MemoryServer) SetTaskStatus(id string, st domain.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskStatus[id] = st
}

// Fail makes every following call return err until Fail(nil).
func (m *MemoryServer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryServer) JobStatus(id string) (domain.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobStatus[id]
	return st, ok
}

func (m *MemoryServer) TaskStatus(id string) (domain.TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.taskStatus[id]
	return st, ok
}

// Submissions returns everything submitted so far, in order.
func (m *MemoryServer) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Submission(nil), m.submissions...)
}

// SubmissionsFor returns the submissions for one item, in order.
func (m *MemoryServer) SubmissionsFor(id string) []Submission {
	var out []Submission
	for _, s := range m.Submissions() {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

// Nodes returns the last submitted node configurations and how many times
// they were submitted.
func (m *MemoryServer) Nodes() ([]domain.NodeConfiguration, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.NodeConfiguration(nil), m.nodes...), m.nodeCalls
}

func (m *MemoryServer) Tools() ([]domain.Tool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Tool(nil), m.tools...), m.toolCalls
}

// Calls counts the calls made, failed ones included.
func (m *MemoryServer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// check counts a call and returns the injected failure, if any. m.mu is held.
func (m *MemoryServer) check(ctx context.Context) error {
	m.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.err
}

func (m *MemoryServer) PullJobConfig(ctx context.Context, id string) (*domain.JobConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	c := *job
	return &c, nil
}

func (m *MemoryServer) PullTaskConfig(ctx context.Context, id string) (*domain.TaskDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "task %s", id)
	}
	d := *task
	return &d, nil
}

func (m *MemoryServer) SubmitJobStatus(ctx context.Context, id string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.jobStatus[id] = status
	m.submissions = append(m.submissions, Submission{Kind: domain.KindJob, ID: id, JobStatus: status})
	return nil
}

func (m *MemoryServer) SubmitJobError(ctx context.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.jobStatus[id] = domain.Failed
	m.submissions = append(m.submissions, Submission{Kind: domain.KindJob, ID: id, JobStatus: domain.Failed, Error: msg})
	return nil
}

func (m *MemoryServer) SubmitTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.taskStatus[id] = status
	m.submissions = append(m.submissions, Submission{Kind: domain.KindTask, ID: id, TaskStatus: status})
	return nil
}

func (m *MemoryServer) SubmitTaskError(ctx context.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.taskStatus[id] = domain.TaskError
	m.submissions = append(m.submissions, Submission{Kind: domain.KindTask, ID: id, TaskStatus: domain.TaskError, Error: msg})
	return nil
}

func (m *MemoryServer) SubmitSolution(ctx context.Context, id string, description map[string]interface{}, archivePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	s := Submission{Kind: domain.KindTask, ID: id, Solution: description, ArchivePath: archivePath}
	if archivePath != "" {
		if info, err := os.Stat(archivePath); err == nil {
			s.ArchiveSize = info.Size()
		}
	}
	m.submissions = append(m.submissions, s)
	return nil
}

func (m *MemoryServer) SubmitNodes(ctx context.Context, nodes []domain.NodeConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.nodes = append([]domain.NodeConfiguration(nil), nodes...)
	m.nodeCalls++
	return nil
}

func (m *MemoryServer) SubmitTools(ctx context.Context, tools []domain.Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	m.tools = append([]domain.Tool(nil), tools...)
	m.toolCalls++
	return nil
}

func (m *MemoryServer) GetAllJobs(ctx context.Context) (map[string]domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Status, len(m.jobStatus))
	for id, st := range m.jobStatus {
		out[id] = st
	}
	return out, nil
}

func (m *MemoryServer) GetAllTasks(ctx context.Context) (map[string]domain.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]domain.TaskStatus, len(m.taskStatus))
	for id, st := range m.taskStatus {
		out[id] = st
	}
	return out, nil
}

func (m *MemoryServer) GetJobTasks(ctx context.Context, jobID string) (map[string]domain.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := m.jobStatus[jobID]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "job %s", jobID)
	}
	out := make(map[string]domain.TaskStatus)
	for id, task := range m.tasks {
		if task.JobID == jobID {
			out[id] = m.taskStatus[id]
		}
	}
	return out, nil
}

// CancelJob moves a running job to CANCELLING; the scheduler confirms with
// CANCELLED. A job that already ended is left alone.
func (m *MemoryServer) CancelJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	st, ok := m.jobStatus[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "job %s", id)
	}
	if !st.IsFinal() {
		m.jobStatus[id] = domain.Cancelling
	}
	return nil
}

func (m *MemoryServer) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if _, ok := m.taskStatus[id]; !ok {
		return errors.Wrapf(ErrNotFound, "task %s", id)
	}
	delete(m.tasks, id)
	delete(m.taskStatus, id)
	return nil
}

// JobIDs returns the known job ids, sorted.
func (m *MemoryServer) JobIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.jobStatus))
	for id := range m.jobStatus {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
