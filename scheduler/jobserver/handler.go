package jobserver

import (
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/scheduler/domain"
)

const maxUploadMemory = 32 << 20

// Handler serves js over the REST paths the Client uses. It lets a
// MemoryServer stand in for the real server on a single host.
type Handler struct {
	js JobServer
}

func NewHandler(js JobServer) *Handler {
	return &Handler{js: js}
}

// RegisterRoutes mounts the service paths on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix(ServicePath).Subrouter()
	s.HandleFunc("/jobs", h.getAllJobs).Methods("GET")
	s.HandleFunc("/jobs/{id}/configuration", h.pullJob).Methods("GET")
	s.HandleFunc("/jobs/{id}/status", h.jobStatus).Methods("PATCH")
	s.HandleFunc("/jobs/{id}/error", h.jobError).Methods("PATCH")
	s.HandleFunc("/jobs/{id}/tasks", h.jobTasks).Methods("GET")
	s.HandleFunc("/jobs/{id}/cancel", h.cancelJob).Methods("POST")
	s.HandleFunc("/tasks", h.getAllTasks).Methods("GET")
	s.HandleFunc("/tasks/{id}/description", h.pullTask).Methods("GET")
	s.HandleFunc("/tasks/{id}/status", h.taskStatus).Methods("PATCH")
	s.HandleFunc("/tasks/{id}/error", h.taskError).Methods("PATCH")
	s.HandleFunc("/tasks/{id}/solution", h.solution).Methods("POST")
	s.HandleFunc("/tasks/{id}", h.deleteTask).Methods("DELETE")
	s.HandleFunc("/nodes", h.nodes).Methods("POST")
	s.HandleFunc("/tools", h.tools).Methods("POST")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Encoding job server response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if IsNotFound(err) {
		code = http.StatusNotFound
	}
	http.Error(w, err.Error(), code)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func done(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAllJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.js.GetAllJobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, jobs)
}

func (h *Handler) getAllTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.js.GetAllTasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tasks)
}

func (h *Handler) jobTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.js.GetJobTasks(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tasks)
}

func (h *Handler) pullJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.js.PullJobConfig(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, job)
}

func (h *Handler) pullTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.js.PullTaskConfig(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, task)
}

func (h *Handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.Status `json:"status"`
	}
	if decode(w, r, &body) {
		done(w, h.js.SubmitJobStatus(r.Context(), mux.Vars(r)["id"], body.Status))
	}
}

func (h *Handler) taskStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.TaskStatus `json:"status"`
	}
	if decode(w, r, &body) {
		done(w, h.js.SubmitTaskStatus(r.Context(), mux.Vars(r)["id"], body.Status))
	}
}

func (h *Handler) jobError(w http.ResponseWriter, r *http.Request) {
	var body errorBody
	if decode(w, r, &body) {
		done(w, h.js.SubmitJobError(r.Context(), mux.Vars(r)["id"], body.Error))
	}
}

func (h *Handler) taskError(w http.ResponseWriter, r *http.Request) {
	var body errorBody
	if decode(w, r, &body) {
		done(w, h.js.SubmitTaskError(r.Context(), mux.Vars(r)["id"], body.Error))
	}
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	done(w, h.js.CancelJob(r.Context(), mux.Vars(r)["id"]))
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	done(w, h.js.DeleteTask(r.Context(), mux.Vars(r)["id"]))
}

func (h *Handler) nodes(w http.ResponseWriter, r *http.Request) {
	var nodes []domain.NodeConfiguration
	if decode(w, r, &nodes) {
		done(w, h.js.SubmitNodes(r.Context(), nodes))
	}
}

func (h *Handler) tools(w http.ResponseWriter, r *http.Request) {
	var tools []domain.Tool
	if decode(w, r, &tools) {
		done(w, h.js.SubmitTools(r.Context(), tools))
	}
}

// solution stores an uploaded archive in a temporary file for the duration
// of the SubmitSolution call.
func (h *Handler) solution(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid solution upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	var description map[string]interface{}
	if err := json.Unmarshal([]byte(r.FormValue("description")), &description); err != nil {
		http.Error(w, "invalid solution description: "+err.Error(), http.StatusBadRequest)
		return
	}

	archivePath := ""
	if file, _, err := r.FormFile("archive"); err == nil {
		defer file.Close()
		path, err := spool(file)
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(path)
		archivePath = path
	}
	done(w, h.js.SubmitSolution(r.Context(), mux.Vars(r)["id"], description, archivePath))
}

func spool(src io.Reader) (string, error) {
	f, err := os.CreateTemp("", "solution-*.zip")
	if err != nil {
		return "", errors.Wrap(err, "creating archive file")
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "storing archive")
	}
	return f.Name(), nil
}

// RegisterSubmission lets clients add jobs and tasks to m over HTTP. Each
// added item is announced through notify, like a real server would push it.
func RegisterSubmission(r *mux.Router, m *MemoryServer, notify func(domain.Notification)) {
	s := r.PathPrefix(ServicePath).Subrouter()
	s.HandleFunc("/jobs", func(w http.ResponseWriter, req *http.Request) {
		var job domain.JobConfiguration
		if !decode(w, req, &job) {
			return
		}
		if err := job.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.AddJob(&job)
		notify(domain.JobNotification(job.ID, domain.Pending))
		w.WriteHeader(http.StatusCreated)
	}).Methods("POST")
	s.HandleFunc("/tasks", func(w http.ResponseWriter, req *http.Request) {
		var task domain.TaskDescription
		if !decode(w, req, &task) {
			return
		}
		if err := task.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.AddTask(&task)
		notify(domain.TaskNotification(task.ID, domain.TaskPending))
		w.WriteHeader(http.StatusCreated)
	}).Methods("POST")
}
