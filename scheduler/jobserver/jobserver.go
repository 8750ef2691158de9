// Package jobserver talks to the coordinating server that owns jobs and
// tasks: it pulls their configurations, pushes status changes and results,
// and lists what the server believes is pending or running.
package jobserver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/verisched/verisched/scheduler/domain"
)

// ErrNotFound is returned when the server does not know the id.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err, possibly wrapped, is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// ErrRejected is returned when the server refused a request as invalid, or
// the request could not be built at all. Sending it again will not help.
var ErrRejected = errors.New("rejected")

// IsRejected reports whether err, possibly wrapped, is ErrRejected.
func IsRejected(err error) bool {
	return errors.Cause(err) == ErrRejected
}

//go:generate mockgen -source=jobserver.go -package=jobserver -destination=jobserver_mock.go

// JobServer is the scheduler's view of the server. Every call may go over
// the network and must honor ctx. Failures are transient unless stated.
type JobServer interface {
	PullJobConfig(ctx context.Context, id string) (*domain.JobConfiguration, error)
	PullTaskConfig(ctx context.Context, id string) (*domain.TaskDescription, error)

	SubmitJobStatus(ctx context.Context, id string, status domain.Status) error
	SubmitJobError(ctx context.Context, id string, msg string) error
	SubmitTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error
	SubmitTaskError(ctx context.Context, id string, msg string) error
	// SubmitSolution uploads a finished task's result. archivePath may be
	// empty when no output is kept.
	SubmitSolution(ctx context.Context, id string, description map[string]interface{}, archivePath string) error

	SubmitNodes(ctx context.Context, nodes []domain.NodeConfiguration) error
	SubmitTools(ctx context.Context, tools []domain.Tool) error

	GetAllJobs(ctx context.Context) (map[string]domain.Status, error)
	GetAllTasks(ctx context.Context) (map[string]domain.TaskStatus, error)
	GetJobTasks(ctx context.Context, jobID string) (map[string]domain.TaskStatus, error)

	CancelJob(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error
}
