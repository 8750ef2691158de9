package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	scooterrors "github.com/verisched/verisched/common/errors"
	"github.com/verisched/verisched/common/log/hooks"
	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/config"
	"github.com/verisched/verisched/scheduler/starter"
)

type options struct {
	configFile string
	preset     string
	logLevel   string
	debug      bool
	adminAddr  string
}

func init() {
	if loglevel := os.Getenv("VERISCHED_LOGLEVEL"); loglevel != "" {
		level, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Error(err)
			return
		}
		log.SetLevel(level)
	}
}

func main() {
	log.AddHook(hooks.NewContextHook())
	if err := newCommand().Execute(); err != nil {
		os.Exit(int(scooterrors.ExitCodeOf(err)))
	}
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "scheduler",
		Short:         "scheduler places jobs and tasks from a job server on worker nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := run(ctx, opts)
			if err != nil {
				log.WithFields(log.Fields{"err": err}).Error("Scheduler failed")
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (JSON or YAML) merged over the preset")
	flags.StringVar(&opts.preset, "config_name", config.DefaultPreset, "Config preset (default|local.local|local.memory)")
	flags.StringVar(&opts.logLevel, "log_level", "", "Log everything at this level and above (error|info|debug)")
	flags.BoolVar(&opts.debug, "debug", false, "Exit on internal errors instead of restarting")
	flags.StringVar(&opts.adminAddr, "admin_addr", "", "Bind address for the admin http server, overrides the config")
	return cmd
}

// loadConfig applies the flags on top of the loaded configuration.
func loadConfig(opts *options) (*config.Config, error) {
	if opts.logLevel != "" {
		level, err := log.ParseLevel(opts.logLevel)
		if err != nil {
			return nil, err
		}
		log.SetLevel(level)
	}
	c, err := config.Load(opts.preset, opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		c.Scheduler.ProductionMode = false
	}
	if opts.adminAddr != "" {
		c.Admin.Addr = opts.adminAddr
	}
	return c, nil
}

func run(ctx context.Context, opts *options) error {
	c, err := loadConfig(opts)
	if err != nil {
		return scooterrors.NewError(err, scooterrors.ConfigFailureExitCode)
	}
	svc, err := starter.Build(c, stats.DefaultStatsReceiver())
	if err != nil {
		return scooterrors.NewError(err, scooterrors.BuildFailureExitCode)
	}
	log.Info("Starting scheduler")
	if err := svc.Run(ctx); err != nil {
		return scooterrors.NewError(err, scooterrors.RunFailureExitCode)
	}
	return nil
}
