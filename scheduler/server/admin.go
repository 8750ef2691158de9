package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/resources"
)

const (
	StatusPath = "/admin/status"
	NodesPath  = "/admin/nodes"
)

// NodeView is a node as the admin endpoint shows it. Sizes are GB.
type NodeView struct {
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	CPUModel          string  `json:"cpuModel"`
	CPUs              int     `json:"cpus"`
	AvailableCPUs     int     `json:"availableCPUs"`
	ReservedCPUs      int     `json:"reservedCPUs"`
	RAMGB             float64 `json:"ramGB"`
	AvailableRAMGB    float64 `json:"availableRAMGB"`
	ReservedRAMGB     float64 `json:"reservedRAMGB"`
	DiskGB            float64 `json:"diskGB"`
	AvailableDiskGB   float64 `json:"availableDiskGB"`
	ReservedDiskGB    float64 `json:"reservedDiskGB"`
	KeptDiskGB        float64 `json:"keptDiskGB"`
	RunningJobs       int     `json:"runningJobs"`
	RunningTasks      int     `json:"runningTasks"`
	AvailableForJobs  bool    `json:"availableForJobs"`
	AvailableForTasks bool    `json:"availableForTasks"`
}

func NodeViews(nodes []resources.Node) []NodeView {
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeView{
			Name:              n.Name,
			Status:            n.Status.String(),
			CPUModel:          n.CPUModel,
			CPUs:              n.CPUCores,
			AvailableCPUs:     n.AvailableCPU,
			ReservedCPUs:      n.ReservedCPU,
			RAMGB:             domain.GB(n.RAM),
			AvailableRAMGB:    domain.GB(n.AvailableRAM),
			ReservedRAMGB:     domain.GB(n.ReservedRAM),
			DiskGB:            domain.GB(n.Disk),
			AvailableDiskGB:   domain.GB(n.AvailableDisk),
			ReservedDiskGB:    domain.GB(n.ReservedDisk),
			KeptDiskGB:        domain.GB(n.KeptDisk),
			RunningJobs:       len(n.RunningJobs),
			RunningTasks:      len(n.RunningTasks),
			AvailableForJobs:  n.AvailableForJobs,
			AvailableForTasks: n.AvailableForTasks,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterAdmin mounts the status and node views of s on r.
func (s *Scheduler) RegisterAdmin(r *mux.Router) {
	r.HandleFunc(StatusPath, func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, s.Status())
	}).Methods("GET")
	r.HandleFunc(NodesPath, func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, NodeViews(s.Status().Nodes))
	}).Methods("GET")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{"err": err}).Debug("Writing admin response failed")
	}
}
