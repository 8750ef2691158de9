package jobserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/scheduler/domain"
)

const NotificationsPath = "/notifications"

// message is one entry of a pushed notification batch:
// {"type": "job", "id": "...", "status": "6"}. Job statuses may be given by
// code or name, task statuses by name.
type message struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Status json.RawMessage `json:"status"`
}

// DecodeNotifications parses a JSON list of status messages. A batch with
// any malformed entry is rejected as a whole.
func DecodeNotifications(r io.Reader) ([]domain.Notification, error) {
	var msgs []message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return nil, errors.Wrap(err, "decoding notifications")
	}
	out := make([]domain.Notification, 0, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			return nil, errors.Errorf("notification %d has no id", i)
		}
		switch strings.ToLower(m.Type) {
		case "job":
			var st domain.Status
			if err := json.Unmarshal(m.Status, &st); err != nil {
				return nil, errors.Wrapf(err, "notification for job %s", m.ID)
			}
			out = append(out, domain.JobNotification(m.ID, st))
		case "task":
			var st domain.TaskStatus
			if err := json.Unmarshal(m.Status, &st); err != nil {
				return nil, errors.Wrapf(err, "notification for task %s", m.ID)
			}
			out = append(out, domain.TaskNotification(m.ID, st))
		default:
			return nil, errors.Errorf("notification %d has unknown type %q", i, m.Type)
		}
	}
	return out, nil
}

// NotificationHandler accepts pushed status changes and hands each to
// notify, in order. notify must not block for long.
func NotificationHandler(notify func(domain.Notification)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, err := DecodeNotifications(r.Body)
		if err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("Rejected notification batch")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, n := range ns {
			notify(n)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]int{"accepted": len(ns)})
	}
}

// RegisterNotifications mounts the notification endpoint on r.
func RegisterNotifications(r *mux.Router, notify func(domain.Notification)) {
	r.HandleFunc(NotificationsPath, NotificationHandler(notify)).Methods("POST")
}
