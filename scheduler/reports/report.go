// Package reports keeps what the scheduler owes the job server. Every
// status, error and solution is appended to an ordered outbox and sent
// later, so a failed submission is retried instead of lost.
package reports

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
)

type Kind int

const (
	StatusReport Kind = iota
	ErrorReport
	SolutionReport
)

func (k Kind) String() string {
	switch k {
	case StatusReport:
		return "status"
	case ErrorReport:
		return "error"
	case SolutionReport:
		return "solution"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Report is one pending submission for a job or a task.
type Report struct {
	// Seq orders reports; it is assigned by the Store.
	Seq      uint64          `json:"seq"`
	Kind     Kind            `json:"kind"`
	ItemKind domain.ItemKind `json:"itemKind"`
	ItemID   string          `json:"itemID"`

	JobStatus   domain.Status          `json:"jobStatus"`
	TaskStatus  domain.TaskStatus      `json:"taskStatus,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Description map[string]interface{} `json:"description,omitempty"`
	ArchivePath string                 `json:"archivePath,omitempty"`

	// Terminal marks the last report for the item. Once it is sent the
	// scheduler forgets the item.
	Terminal bool `json:"terminal,omitempty"`
}

// Key identifies the item a report is about.
func (r Report) Key() string {
	return Key(r.ItemKind, r.ItemID)
}

func Key(kind domain.ItemKind, id string) string {
	return kind.String() + "/" + id
}

func (r Report) String() string {
	switch r.Kind {
	case StatusReport:
		if r.ItemKind == domain.KindJob {
			return fmt.Sprintf("#%d %s %s", r.Seq, r.Key(), r.JobStatus)
		}
		return fmt.Sprintf("#%d %s %s", r.Seq, r.Key(), r.TaskStatus)
	case ErrorReport:
		return fmt.Sprintf("#%d %s error: %s", r.Seq, r.Key(), r.Message)
	}
	return fmt.Sprintf("#%d %s %s", r.Seq, r.Key(), r.Kind)
}

func JobStatus(id string, st domain.Status, terminal bool) Report {
	return Report{Kind: StatusReport, ItemKind: domain.KindJob, ItemID: id, JobStatus: st, Terminal: terminal}
}

func TaskStatus(id string, st domain.TaskStatus, terminal bool) Report {
	return Report{Kind: StatusReport, ItemKind: domain.KindTask, ItemID: id, TaskStatus: st, Terminal: terminal}
}

// Error reports a terminal failure of the item.
func Error(kind domain.ItemKind, id, msg string) Report {
	return Report{Kind: ErrorReport, ItemKind: kind, ItemID: id, Message: msg, Terminal: true}
}

func Solution(id string, description map[string]interface{}, archivePath string) Report {
	return Report{Kind: SolutionReport, ItemKind: domain.KindTask, ItemID: id, Description: description, ArchivePath: archivePath}
}

// Send delivers r to js.
func Send(ctx context.Context, js jobserver.JobServer, r Report) error {
	switch r.Kind {
	case StatusReport:
		if r.ItemKind == domain.KindJob {
			return js.SubmitJobStatus(ctx, r.ItemID, r.JobStatus)
		}
		return js.SubmitTaskStatus(ctx, r.ItemID, r.TaskStatus)
	case ErrorReport:
		if r.ItemKind == domain.KindJob {
			return js.SubmitJobError(ctx, r.ItemID, r.Message)
		}
		return js.SubmitTaskError(ctx, r.ItemID, r.Message)
	case SolutionReport:
		return js.SubmitSolution(ctx, r.ItemID, r.Description, r.ArchivePath)
	}
	return errors.Errorf("unknown report kind %d", int(r.Kind))
}
