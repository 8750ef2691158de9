package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// JobConfiguration is what the server hands out for a pending job.
type JobConfiguration struct {
	ID         string          `json:"identifier"`
	Priority   Priority        `json:"priority"`
	Limits     ResourceLimits  `json:"resource limits"`
	TaskLimits ResourceLimits  `json:"task resource limits"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// TaskDescription is what the server hands out for a pending task.
// JobID may name a job this scheduler does not track.
type TaskDescription struct {
	ID       string          `json:"id"`
	JobID    string          `json:"job id"`
	Priority Priority        `json:"priority"`
	Limits   ResourceLimits  `json:"resource limits"`
	Options  json.RawMessage `json:"options,omitempty"`
}

func (c *JobConfiguration) Validate() error {
	if c.ID == "" {
		return errors.New("job configuration has no identifier")
	}
	if err := c.Limits.Validate(); err != nil {
		return errors.Wrapf(err, "job %s", c.ID)
	}
	if err := c.TaskLimits.Validate(); err != nil {
		return errors.Wrapf(err, "job %s task budget", c.ID)
	}
	return nil
}

func (d *TaskDescription) Validate() error {
	if d.ID == "" {
		return errors.New("task description has no id")
	}
	if err := d.Limits.Validate(); err != nil {
		return errors.Wrapf(err, "task %s", d.ID)
	}
	return nil
}

// ParseJobConfiguration decodes and validates a job configuration.
func ParseJobConfiguration(data []byte) (*JobConfiguration, error) {
	c := &JobConfiguration{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "decoding job configuration")
	}
	return c, c.Validate()
}

// ParseTaskDescription decodes and validates a task description.
func ParseTaskDescription(data []byte) (*TaskDescription, error) {
	d := &TaskDescription{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, errors.Wrap(err, "decoding task description")
	}
	return d, d.Validate()
}

// NodeWorkload is the current use of a node as reported to the server.
type NodeWorkload struct {
	ReservedCPU       int     `json:"reserved CPU number"`
	ReservedRAMGB     float64 `json:"reserved RAM memory"`
	ReservedDiskGB    float64 `json:"reserved disk memory"`
	RunningJobs       int     `json:"running verification jobs"`
	RunningTasks      int     `json:"running verification tasks"`
	AvailableForJobs  bool    `json:"available for jobs"`
	AvailableForTasks bool    `json:"available for tasks"`
}

// NodeConfiguration is the per-node payload of SubmitNodes.
type NodeConfiguration struct {
	Name     string       `json:"node name"`
	CPUModel string       `json:"CPU model"`
	CPUCores int          `json:"CPU number"`
	RAMGB    float64      `json:"RAM memory"`
	DiskGB   float64      `json:"disk memory"`
	Workload NodeWorkload `json:"workload"`
}

// Tool is a verification tool version installed on the workers.
type Tool struct {
	Name    string `json:"tool"`
	Version string `json:"version"`
}

type ItemKind int

const (
	KindJob ItemKind = iota
	KindTask
)

func (k ItemKind) String() string {
	if k == KindJob {
		return "job"
	}
	return "task"
}

// Notification is a status change pushed by the server.
// JobStatus is set for jobs, TaskStatus for tasks.
type Notification struct {
	Kind       ItemKind
	ID         string
	JobStatus  Status
	TaskStatus TaskStatus
}

func JobNotification(id string, st Status) Notification {
	return Notification{Kind: KindJob, ID: id, JobStatus: st}
}

func TaskNotification(id string, st TaskStatus) Notification {
	return Notification{Kind: KindTask, ID: id, TaskStatus: st}
}
