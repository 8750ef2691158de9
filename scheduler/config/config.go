// Package config holds the settings of a scheduler process. A named preset
// gives the starting values; a config file and VERISCHED_ environment
// variables override them, e.g. VERISCHED_SCHEDULER_MAXJOBS=4.
package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/verisched/verisched/cloud/cluster"
	"github.com/verisched/verisched/cloud/cluster/local"
	"github.com/verisched/verisched/runner/runners"
	"github.com/verisched/verisched/scheduler/domain"
	"github.com/verisched/verisched/scheduler/jobserver"
	"github.com/verisched/verisched/scheduler/reports"
	"github.com/verisched/verisched/scheduler/resources"
	"github.com/verisched/verisched/scheduler/server"
)

const EnvPrefix = "VERISCHED"

const (
	JobServerHTTP   = "http"
	JobServerMemory = "memory"

	DirectoryLocal  = "local"
	DirectoryConsul = "consul"
	DirectoryMemory = "memory"

	RunnerLocal = "local"

	ReportsMemory = "memory"
	ReportsBolt   = "bolt"
)

// Config is the whole configuration document.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	JobServer JobServerConfig `mapstructure:"jobserver"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n%s\n%s\n%s\n%s\n%s\n%s", c.Scheduler, c.JobServer, c.Directory, c.Runner, c.Reports, c.Admin)
}

type ToolConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type SchedulerConfig struct {
	MaxJobs                 int           `mapstructure:"maxJobs"`
	MaxProcesses            int           `mapstructure:"maxProcesses"`
	TickRate                time.Duration `mapstructure:"tickRate"`
	ReconcileEvery          int           `mapstructure:"reconcileEvery"`
	RequestTimeout          time.Duration `mapstructure:"requestTimeout"`
	ProductionMode          bool          `mapstructure:"productionMode"`
	RestartCooldown         time.Duration `mapstructure:"restartCooldown"`
	NotificationBuffer      int           `mapstructure:"notificationBuffer"`
	MaxNotificationsPerStep int           `mapstructure:"maxNotificationsPerStep"`
	RecentlyCleared         int           `mapstructure:"recentlyCleared"`
	// LimitByHostLoad shrinks the task pool by the host load the local
	// runner did not cause.
	LimitByHostLoad         bool          `mapstructure:"limitByHostLoad"`
	Tools                   []ToolConfig  `mapstructure:"tools"`
}

func (c SchedulerConfig) String() string {
	return fmt.Sprintf("SchedulerConfig: MaxJobs: %d, MaxProcesses: %d, TickRate: %s, ReconcileEvery: %d, RequestTimeout: %s, "+
		"ProductionMode: %t, RestartCooldown: %s, NotificationBuffer: %d, MaxNotificationsPerStep: %d, LimitByHostLoad: %t, Tools: %v",
		c.MaxJobs, c.MaxProcesses, c.TickRate, c.ReconcileEvery, c.RequestTimeout,
		c.ProductionMode, c.RestartCooldown, c.NotificationBuffer, c.MaxNotificationsPerStep, c.LimitByHostLoad, c.Tools)
}

type JobServerConfig struct {
	Type              string        `mapstructure:"type"` // http, memory
	Address           string        `mapstructure:"address"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	RetryInterval     time.Duration `mapstructure:"retryInterval"`
	RequestsPerSecond float64       `mapstructure:"requestsPerSecond"`
	Burst             int           `mapstructure:"burst"`
}

func (c JobServerConfig) String() string {
	return fmt.Sprintf("JobServerConfig: Type: %s, Address: %s, Timeout: %s, Retries: %d, RetryInterval: %s, RequestsPerSecond: %g, Burst: %d",
		c.Type, c.Address, c.Timeout, c.Retries, c.RetryInterval, c.RequestsPerSecond, c.Burst)
}

// MemoryNodeConfig describes one node of a memory directory. Sizes are GB.
type MemoryNodeConfig struct {
	Name     string `mapstructure:"name"`
	CPUModel string `mapstructure:"cpuModel"`
	CPUs     int    `mapstructure:"cpus"`
	RAMGB    int64  `mapstructure:"ramGB"`
	DiskGB   int64  `mapstructure:"diskGB"`
}

type DirectoryConfig struct {
	Type string `mapstructure:"type"` // local, consul, memory

	// consul
	Address string `mapstructure:"address"`
	Prefix  string `mapstructure:"prefix"`

	// local; reserves are held back for the host itself
	Name          string `mapstructure:"name"`
	ReserveCPU    int    `mapstructure:"reserveCPU"`
	ReserveRAMGB  int64  `mapstructure:"reserveRAMGB"`
	ReserveDiskGB int64  `mapstructure:"reserveDiskGB"`

	// memory
	Nodes []MemoryNodeConfig `mapstructure:"nodes"`

	AvailableForJobs  bool `mapstructure:"availableForJobs"`
	AvailableForTasks bool `mapstructure:"availableForTasks"`

	// Remote directories are read in the background every RefreshInterval;
	// a view older than MaxAge counts as unavailable. Zero reads on demand.
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
	MaxAge          time.Duration `mapstructure:"maxAge"`
}

func (c DirectoryConfig) String() string {
	return fmt.Sprintf("DirectoryConfig: Type: %s, Address: %s, Prefix: %s, Name: %s, Reserve: %d CPU %dGB RAM %dGB disk, "+
		"Nodes: %d, AvailableForJobs: %t, AvailableForTasks: %t, RefreshInterval: %s, MaxAge: %s",
		c.Type, c.Address, c.Prefix, c.Name, c.ReserveCPU, c.ReserveRAMGB, c.ReserveDiskGB,
		len(c.Nodes), c.AvailableForJobs, c.AvailableForTasks, c.RefreshInterval, c.MaxAge)
}

type RunnerConfig struct {
	Type         string        `mapstructure:"type"` // local
	WorkDir      string        `mapstructure:"workDir"`
	JobCommand   []string      `mapstructure:"jobCommand"`
	TaskCommand  []string      `mapstructure:"taskCommand"`
	KeepWorkDirs bool          `mapstructure:"keepWorkDirs"`
	ResultFile   string        `mapstructure:"resultFile"`
	AbortTimeout time.Duration `mapstructure:"abortTimeout"`
}

func (c RunnerConfig) String() string {
	return fmt.Sprintf("RunnerConfig: Type: %s, WorkDir: %s, JobCommand: %v, TaskCommand: %v, KeepWorkDirs: %t, ResultFile: %s, AbortTimeout: %s",
		c.Type, c.WorkDir, c.JobCommand, c.TaskCommand, c.KeepWorkDirs, c.ResultFile, c.AbortTimeout)
}

type ReportsConfig struct {
	Type              string        `mapstructure:"type"` // memory, bolt
	Path              string        `mapstructure:"path"`
	SendTimeout       time.Duration `mapstructure:"sendTimeout"`
	MaxReportsPerStep int           `mapstructure:"maxReportsPerStep"`
	MaxAttempts       int           `mapstructure:"maxAttempts"`
	MaxRejections     int           `mapstructure:"maxRejections"`
}

func (c ReportsConfig) String() string {
	return fmt.Sprintf("ReportsConfig: Type: %s, Path: %s, SendTimeout: %s, MaxReportsPerStep: %d, MaxAttempts: %d, MaxRejections: %d",
		c.Type, c.Path, c.SendTimeout, c.MaxReportsPerStep, c.MaxAttempts, c.MaxRejections)
}

type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

func (c AdminConfig) String() string {
	return fmt.Sprintf("AdminConfig: Addr: %s", c.Addr)
}

// Validate rejects unknown types and limits that can never work.
func (c *Config) Validate() error {
	s := c.Scheduler
	if s.MaxJobs <= 0 || s.MaxProcesses <= 0 {
		return errors.Errorf("scheduler needs positive maxJobs and maxProcesses, got %d and %d", s.MaxJobs, s.MaxProcesses)
	}
	if s.TickRate < 0 || s.RequestTimeout < 0 || s.RestartCooldown < 0 || s.ReconcileEvery < 0 {
		return errors.Errorf("negative scheduler setting: %s", s)
	}
	for _, t := range s.Tools {
		if t.Name == "" {
			return errors.New("tool without a name")
		}
	}

	switch c.JobServer.Type {
	case JobServerHTTP:
		if c.JobServer.Address == "" {
			return errors.New("http job server needs an address")
		}
	case JobServerMemory:
	default:
		return unknownType("jobserver", c.JobServer.Type)
	}

	switch c.Directory.Type {
	case DirectoryLocal:
		if c.Directory.ReserveCPU < 0 || c.Directory.ReserveRAMGB < 0 || c.Directory.ReserveDiskGB < 0 {
			return errors.New("negative directory reserve")
		}
	case DirectoryConsul:
		if c.Directory.Address == "" {
			return errors.New("consul directory needs an address")
		}
	case DirectoryMemory:
		for _, n := range c.Directory.Nodes {
			if n.Name == "" || n.CPUs <= 0 || n.RAMGB <= 0 || n.DiskGB <= 0 {
				return errors.Errorf("invalid memory node %+v", n)
			}
		}
	default:
		return unknownType("directory", c.Directory.Type)
	}

	switch c.Runner.Type {
	case RunnerLocal:
		if c.Runner.WorkDir == "" {
			return errors.New("local runner needs a workDir")
		}
		if len(c.Runner.JobCommand) == 0 || len(c.Runner.TaskCommand) == 0 {
			return errors.New("local runner needs a jobCommand and a taskCommand")
		}
	default:
		return unknownType("runner", c.Runner.Type)
	}

	switch c.Reports.Type {
	case ReportsMemory:
	case ReportsBolt:
		if c.Reports.Path == "" {
			return errors.New("bolt reports store needs a path")
		}
	default:
		return unknownType("reports", c.Reports.Type)
	}
	if c.Reports.MaxReportsPerStep < 0 || c.Reports.MaxAttempts < 0 || c.Reports.MaxRejections < 0 {
		return errors.Errorf("negative reports setting: %s", c.Reports)
	}
	return nil
}

func unknownType(section, t string) error {
	return errors.Errorf("unknown %s type %q", section, t)
}

// Load reads the preset named by selector, merges the file at path over it
// when path is set, applies the environment and validates the result.
func Load(selector, path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	defaultText, err := GetConfigText(DefaultPreset)
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaultText)); err != nil {
		return nil, errors.Wrap(err, "couldn't parse the default config")
	}
	if selector != "" && selector != DefaultPreset {
		text, err := GetConfigText(selector)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfig(bytes.NewReader(text)); err != nil {
			return nil, errors.Wrapf(err, "couldn't parse config %s", selector)
		}
	}
	if path != "" {
		f := viper.New()
		f.SetConfigFile(path)
		if err := f.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
		if err := v.MergeConfigMap(f.AllSettings()); err != nil {
			return nil, errors.Wrapf(err, "merging config file %s", path)
		}
		log.Infof("Merged config file %s", path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return c, nil
}

// GetConfigText returns the JSON text of a preset.
func GetConfigText(selector string) ([]byte, error) {
	text, ok := Presets[selector]
	if !ok {
		keys := make([]string, 0, len(Presets))
		for k := range Presets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, errors.Errorf("invalid configuration %s, supported values are %v", selector, keys)
	}
	return []byte(text), nil
}

func (c *Config) ServerConfig() server.Config {
	s := c.Scheduler
	tools := make([]domain.Tool, len(s.Tools))
	for i, t := range s.Tools {
		tools[i] = domain.Tool{Name: t.Name, Version: t.Version}
	}
	return server.Config{
		TickRate:                s.TickRate,
		ReconcileEvery:          s.ReconcileEvery,
		RequestTimeout:          s.RequestTimeout,
		ProductionMode:          s.ProductionMode,
		RestartCooldown:         s.RestartCooldown,
		NotificationBuffer:      s.NotificationBuffer,
		MaxNotificationsPerStep: s.MaxNotificationsPerStep,
		RecentlyCleared:         s.RecentlyCleared,
		Tools:                   tools,
	}
}

func (c *Config) ResourcesConfig() resources.Config {
	return resources.Config{
		MaxJobs:      c.Scheduler.MaxJobs,
		MaxProcesses: c.Scheduler.MaxProcesses,
	}
}

func (c *Config) ClientConfig() jobserver.ClientConfig {
	js := c.JobServer
	return jobserver.ClientConfig{
		Address:           js.Address,
		Timeout:           js.Timeout,
		Retries:           js.Retries,
		RetryInterval:     js.RetryInterval,
		RequestsPerSecond: js.RequestsPerSecond,
		Burst:             js.Burst,
	}
}

func (c *Config) OutboxConfig() reports.Config {
	return reports.Config{
		SendTimeout:   c.Reports.SendTimeout,
		MaxPerFlush:   c.Reports.MaxReportsPerStep,
		MaxAttempts:   c.Reports.MaxAttempts,
		MaxRejections: c.Reports.MaxRejections,
	}
}

// LocalRunnerConfig shares the process limit with the resource manager so
// that the pool and the reservations agree.
func (c *Config) LocalRunnerConfig() runners.LocalConfig {
	r := c.Runner
	return runners.LocalConfig{
		WorkDir:      r.WorkDir,
		JobCommand:   r.JobCommand,
		TaskCommand:  r.TaskCommand,
		MaxProcesses: c.Scheduler.MaxProcesses,
		KeepWorkDirs: r.KeepWorkDirs,
		ResultFile:   r.ResultFile,
	}
}

func (c *Config) LocalDirectoryConfig() local.Config {
	d := c.Directory
	return local.Config{
		Name:              d.Name,
		WorkDir:           c.Runner.WorkDir,
		ReserveCPU:        d.ReserveCPU,
		ReserveRAM:        d.ReserveRAMGB * domain.GiB,
		ReserveDisk:       d.ReserveDiskGB * domain.GiB,
		AvailableForJobs:  d.AvailableForJobs,
		AvailableForTasks: d.AvailableForTasks,
	}
}

// MemoryNodes returns the states of the configured memory nodes, fully
// available.
func (c *Config) MemoryNodes() map[string]cluster.NodeState {
	out := make(map[string]cluster.NodeState, len(c.Directory.Nodes))
	for _, n := range c.Directory.Nodes {
		out[n.Name] = cluster.NodeState{
			CPUModel:            n.CPUModel,
			CPUNumber:           n.CPUs,
			AvailableCPUNumber:  n.CPUs,
			RAMMemory:           n.RAMGB * domain.GiB,
			AvailableRAMMemory:  n.RAMGB * domain.GiB,
			DiskMemory:          n.DiskGB * domain.GiB,
			AvailableDiskMemory: n.DiskGB * domain.GiB,
			AvailableForJobs:    c.Directory.AvailableForJobs,
			AvailableForTasks:   c.Directory.AvailableForTasks,
		}
	}
	return out
}
