package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status is the server-side state of a job. The numeric value is the wire code.
type Status int

const (
	NotSolved Status = iota
	Pending
	Processing
	Solved
	Failed
	Corrupted
	Cancelling
	Cancelled
	Terminated
	Refined
)

var statusNames = [...]string{
	NotSolved:  "NOT SOLVED",
	Pending:    "PENDING",
	Processing: "PROCESSING",
	Solved:     "SOLVED",
	Failed:     "FAILED",
	Corrupted:  "CORRUPTED",
	Cancelling: "CANCELLING",
	Cancelled:  "CANCELLED",
	Terminated: "TERMINATED",
	Refined:    "REFINED",
}

func (s Status) valid() bool {
	return s >= NotSolved && s <= Refined
}

func (s Status) String() string {
	if !s.valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Code returns the wire code, "0".."9".
func (s Status) Code() string {
	return strconv.Itoa(int(s))
}

// IsFinal is true for every status the scheduler no longer acts on.
func (s Status) IsFinal() bool {
	return s != Pending && s != Processing && s != Cancelling
}

func StatusFromCode(code int) (Status, error) {
	s := Status(code)
	if !s.valid() {
		return 0, errors.Errorf("unknown job status code %d", code)
	}
	return s, nil
}

// ParseStatus accepts either a status name ("SOLVED") or its wire code ("3").
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if code, err := strconv.Atoi(v); err == nil {
		return StatusFromCode(code)
	}
	for i, name := range statusNames {
		if strings.EqualFold(name, v) {
			return Status(i), nil
		}
	}
	return 0, errors.Errorf("unknown job status %q", v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.valid() {
		return nil, errors.Errorf("cannot marshal invalid job status %d", int(s))
	}
	return json.Marshal(s.Code())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		st, err := StatusFromCode(code)
		if err != nil {
			return err
		}
		*s = st
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.Wrap(err, "job status must be a string or number")
	}
	st, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// TaskStatus is the server-side state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskFinished   TaskStatus = "FINISHED"
	TaskError      TaskStatus = "ERROR"
	TaskCancelled  TaskStatus = "CANCELLED"
)

var taskStatuses = []TaskStatus{TaskPending, TaskProcessing, TaskFinished, TaskError, TaskCancelled}

func (s TaskStatus) IsFinal() bool {
	return s != TaskPending && s != TaskProcessing
}

func ParseTaskStatus(v string) (TaskStatus, error) {
	for _, s := range taskStatuses {
		if strings.EqualFold(string(s), strings.TrimSpace(v)) {
			return s, nil
		}
	}
	return "", errors.Errorf("unknown task status %q", v)
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.Wrap(err, "task status must be a string")
	}
	st, err := ParseTaskStatus(str)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
