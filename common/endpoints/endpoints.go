// Package endpoints is the admin HTTP server every binary runs: health,
// metrics and whatever routes its components add.
package endpoints

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/stats"
)

const (
	HealthPath  = "/health"
	MetricsPath = "/admin/metrics.json"

	shutdownTimeout = 5 * time.Second
)

type AdminServer struct {
	Addr   string
	Stats  stats.StatsReceiver
	Router *mux.Router
}

func NewAdminServer(addr string, stat stats.StatsReceiver) *AdminServer {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	s := &AdminServer{
		Addr:   addr,
		Stats:  stat,
		Router: mux.NewRouter(),
	}
	s.Router.HandleFunc(HealthPath, healthHandler).Methods("GET")
	s.Router.HandleFunc(MetricsPath, s.statsHandler).Methods("GET")
	s.Router.NotFoundHandler = http.HandlerFunc(helpHandler)
	return s
}

// Serve listens on Addr until ctx is done.
func (s *AdminServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.Addr)
	}
	return s.ServeListener(ctx, ln)
}

func (s *AdminServer) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Router}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("Admin server shutdown failed")
		}
	}()
	log.Infof("Serving http & stats on %s", ln.Addr())
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		<-done
		return nil
	}
	return err
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, fmt.Sprintf("Common paths: '%s', '%s'", HealthPath, MetricsPath), http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *AdminServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	pretty := r.URL.Query().Get("pretty") == "true"
	if _, err := w.Write(s.Stats.Render(pretty)); err != nil {
		log.WithFields(log.Fields{"err": err}).Debug("Writing stats failed")
	}
}
