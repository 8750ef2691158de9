package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sethgrid/pester"
	"github.com/spf13/cobra"

	"github.com/verisched/verisched/scheduler/server"
)

type nodesCmd struct {
}

func (c *nodesCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Show the nodes a scheduler sees and what is reserved on them",
		Args:  cobra.NoArgs,
	}
}

func (c *nodesCmd) Run(cl *SchedCLIClient, cmd *cobra.Command, args []string) error {
	client := pester.New()
	client.Timeout = cl.Timeout
	client.MaxRetries = 2

	url := strings.TrimSuffix(cl.AdminAddr, "/") + server.NodesPath
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("Error reaching scheduler admin: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Scheduler admin error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var nodes []server.NodeView
	if err := json.Unmarshal(body, &nodes); err != nil {
		return fmt.Errorf("Error parsing nodes: %v", err)
	}

	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{
			n.Name,
			n.Status,
			fmt.Sprintf("%s (%d)", n.CPUModel, n.CPUs),
			fmt.Sprintf("%d/%d", n.ReservedCPUs, n.AvailableCPUs),
			fmt.Sprintf("%.1f/%.1f", n.ReservedRAMGB, n.AvailableRAMGB),
			fmt.Sprintf("%.1f/%.1f", n.ReservedDiskGB, n.AvailableDiskGB),
			fmt.Sprintf("%d", n.RunningJobs),
			fmt.Sprintf("%d", n.RunningTasks),
		})
	}
	return cl.print(nodes, []string{"Node", "Status", "CPU", "Cores", "RAM GB", "Disk GB", "Jobs", "Tasks"}, rows)
}
