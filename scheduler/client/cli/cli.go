package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/jobserver"
)

const (
	DefaultAddr      = "http://localhost:8998"
	DefaultAdminAddr = "http://localhost:9091"
)

// SchedCLIClient holds what every command needs.
type SchedCLIClient struct {
	RootCmd   *cobra.Command
	Addr      string
	AdminAddr string
	LogLevel  string
	Output    string
	Timeout   time.Duration
	JobServer jobserver.JobServer
	Out       io.Writer
}

// Cmd is one subcommand.
type Cmd interface {
	RegisterFlags() *cobra.Command
	Run(cl *SchedCLIClient, cmd *cobra.Command, args []string) error
}

func (c *SchedCLIClient) Exec() error {
	return c.RootCmd.Execute()
}

// NewSimpleCLIClient builds the command tree. js, if set, is used instead
// of a client for --addr.
func NewSimpleCLIClient(js jobserver.JobServer) *SchedCLIClient {
	c := &SchedCLIClient{JobServer: js}
	c.RootCmd = &cobra.Command{
		Use:               "schedctl",
		Short:             "schedctl inspects a scheduler and its job server",
		PersistentPreRunE: c.Init,
		SilenceUsage:      true,
	}
	flags := c.RootCmd.PersistentFlags()
	flags.StringVar(&c.Addr, "addr", DefaultAddr, "Job server base URL")
	flags.StringVar(&c.AdminAddr, "admin", DefaultAdminAddr, "Scheduler admin base URL")
	flags.StringVar(&c.LogLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	flags.StringVarP(&c.Output, "output", "o", "table", "Output format (table|json)")
	flags.DurationVar(&c.Timeout, "timeout", 10*time.Second, "Timeout of each request")

	c.addCmd(&nodesCmd{})
	c.addCmd(&jobsCmd{})
	c.addCmd(&tasksCmd{})
	c.addCmd(&cancelJobCmd{})
	c.addCmd(&deleteTaskCmd{})
	return c
}

// Can only be called from cobra command run or hook
func (c *SchedCLIClient) Init(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.Output != "table" && c.Output != "json" {
		return fmt.Errorf("unknown output format %q", c.Output)
	}
	c.Out = cmd.OutOrStdout()
	if c.JobServer == nil {
		client, err := jobserver.NewClient(jobserver.ClientConfig{Address: c.Addr, Timeout: c.Timeout}, stats.NilStatsReceiver())
		if err != nil {
			return err
		}
		c.JobServer = client
	}
	return nil
}

func (c *SchedCLIClient) addCmd(cmd Cmd) {
	cobraCmd := cmd.RegisterFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.Run(c, innerCmd, args)
	}
	c.RootCmd.AddCommand(cobraCmd)
}

// print writes v as indented JSON, or as a table of header and rows.
func (c *SchedCLIClient) print(v interface{}, header []string, rows [][]string) error {
	if c.Output == "json" {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.Out, string(out))
		return err
	}
	table := tablewriter.NewWriter(c.Out)
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	table.Header(cells...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
