// Package tags holds the identifiers attached to log entries about one item.
package tags

import (
	log "github.com/sirupsen/logrus"
)

type LogTags struct {
	JobID  string
	TaskID string
	Node   string
	Tag    string
}

// Fields returns the non-empty tags as logrus fields.
func (t LogTags) Fields() log.Fields {
	f := log.Fields{}
	if t.JobID != "" {
		f["jobID"] = t.JobID
	}
	if t.TaskID != "" {
		f["taskID"] = t.TaskID
	}
	if t.Node != "" {
		f["node"] = t.Node
	}
	if t.Tag != "" {
		f["tag"] = t.Tag
	}
	return f
}

// Entry starts a log entry carrying the tags.
func (t LogTags) Entry() *log.Entry {
	return log.WithFields(t.Fields())
}
