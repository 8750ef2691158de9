// Package starter builds a scheduler process from its configuration and
// runs it next to the admin server.
package starter

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/cloud/cluster/consul"
	"github.com/verisched/verisched/cloud/cluster/local"
	"github.com/verisched/verisched/cloud/cluster/memory"
	"github.com/verisched/verisched/common/endpoints"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/runner"
	osexec "github.com/verisched/verisched/runner/execer/os"
	"github.com/verisched/verisched/runner/runners"
	"github.com/verisched/verisched/scheduler/config"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
	"github.com/verisched/verisched/scheduler/reports"
	"github.com/verisched/verisched/scheduler/resources"
	"github.com/verisched/verisched/scheduler/server"
)

// Service is a built scheduler process.
type Service struct {
	Config    *config.Config
	Stat      stats.StatsReceiver
	JobServer jobserver.JobServer
	// Memory is set when the job server lives in this process.
	Memory    *jobserver.MemoryServer
	Directory cluster.Directory
	Runner    runner.Runner
	Store     reports.Store
	Scheduler *server.Scheduler
	Admin     *endpoints.AdminServer

	closers []func()
}

// Build creates every component. On error whatever was already opened is
// closed again.
func Build(c *config.Config, stat stats.StatsReceiver) (svc *Service, err error) {
	if stat == nil {
		stat = stats.DefaultStatsReceiver()
	}
	svc = &Service{Config: c, Stat: stat}
	defer func() {
		if err != nil {
			svc.Close()
			svc = nil
		}
	}()

	if err = svc.makeJobServer(); err != nil {
		return
	}
	if err = svc.makeDirectory(); err != nil {
		return
	}
	if err = svc.makeRunner(); err != nil {
		return
	}
	if err = svc.makeStore(); err != nil {
		return
	}

	outbox := reports.NewOutbox(svc.Store, svc.JobServer, c.OutboxConfig(), stat)
	svc.Scheduler = server.New(c.ServerConfig(), svc.resourcesConfig(), svc.JobServer, svc.Directory, svc.Runner, outbox, stat)

	svc.Admin = endpoints.NewAdminServer(c.Admin.Addr, stat)
	svc.Scheduler.RegisterAdmin(svc.Admin.Router)
	notify := func(n domain.Notification) { svc.Scheduler.Notify(n) }
	jobserver.RegisterNotifications(svc.Admin.Router, notify)
	if svc.Memory != nil {
		jobserver.RegisterSubmission(svc.Admin.Router, svc.Memory, notify)
		jobserver.NewHandler(svc.Memory).RegisterRoutes(svc.Admin.Router)
	}
	log.Infof("Built scheduler with config:%s", c)
	return svc, nil
}

func (s *Service) makeJobServer() error {
	switch s.Config.JobServer.Type {
	case config.JobServerMemory:
		s.Memory = jobserver.NewMemoryServer()
		s.JobServer = s.Memory
	case config.JobServerHTTP:
		client, err := jobserver.NewClient(s.Config.ClientConfig(), s.Stat)
		if err != nil {
			return err
		}
		s.JobServer = client
	default:
		return errors.Errorf("unknown jobserver type %q", s.Config.JobServer.Type)
	}
	return nil
}

func (s *Service) makeDirectory() error {
	d := s.Config.Directory
	switch d.Type {
	case config.DirectoryMemory:
		dir := memory.NewDirectory()
		for name, st := range s.Config.MemoryNodes() {
			dir.SetNode(name, st)
		}
		s.Directory = dir
	case config.DirectoryLocal:
		dir, err := local.NewDirectory(s.Config.LocalDirectoryConfig())
		if err != nil {
			return err
		}
		s.Directory = dir
	case config.DirectoryConsul:
		var dir cluster.Directory = consul.NewDirectory(d.Address, d.Prefix)
		if d.RefreshInterval > 0 {
			cached := cluster.NewCachedDirectory(dir, d.RefreshInterval, d.MaxAge)
			s.closers = append(s.closers, cached.Close)
			dir = cached
		}
		s.Directory = dir
	default:
		return errors.Errorf("unknown directory type %q", d.Type)
	}
	return nil
}

// resourcesConfig hooks the host load into the task pool when asked to.
func (s *Service) resourcesConfig() resources.Config {
	rc := s.Config.ResourcesConfig()
	if s.Config.Scheduler.LimitByHostLoad {
		if local, ok := s.Runner.(*runners.LocalRunner); ok {
			rc.ExternalLoad = local.ExternalLoad
		}
	}
	return rc
}

func (s *Service) makeRunner() error {
	if s.Config.Runner.Type != config.RunnerLocal {
		return errors.Errorf("unknown runner type %q", s.Config.Runner.Type)
	}
	ex := osexec.NewBoundedExecer(s.Config.Runner.AbortTimeout)
	run, err := runners.NewLocalRunner(s.Config.LocalRunnerConfig(), ex, s.Stat)
	if err != nil {
		return err
	}
	s.Runner = run
	return nil
}

func (s *Service) makeStore() error {
	switch s.Config.Reports.Type {
	case config.ReportsMemory:
		s.Store = reports.NewMemoryStore()
	case config.ReportsBolt:
		store, err := reports.NewBoltStore(s.Config.Reports.Path)
		if err != nil {
			return err
		}
		s.Store = store
	default:
		return errors.Errorf("unknown reports type %q", s.Config.Reports.Type)
	}
	s.closers = append(s.closers, func() {
		if err := s.Store.Close(); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("Closing report store failed")
		}
	})
	return nil
}

// Run serves the admin endpoints and drives the scheduler loop until ctx is
// done or the loop fails. A failing admin server stops the loop too.
func (s *Service) Run(ctx context.Context) error {
	defer s.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	go func() {
		err := s.Admin.Serve(ctx)
		if err != nil {
			log.WithFields(log.Fields{"err": err}).Error("Admin server failed, stopping")
			cancel()
		}
		adminErr <- err
	}()

	err := s.Scheduler.Run(ctx)
	cancel()
	if aerr := <-adminErr; err == nil && aerr != nil {
		err = errors.Wrap(aerr, "admin server")
	}
	return err
}

// Close releases what Build opened, in reverse order. It is idempotent.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
