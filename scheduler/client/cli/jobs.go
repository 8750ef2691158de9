package cli

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type jobsCmd struct {
}

func (c *jobsCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs known to the job server",
		Args:  cobra.NoArgs,
	}
}

func (c *jobsCmd) Run(cl *SchedCLIClient, cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cl.Timeout)
	defer cancel()
	jobs, err := cl.JobServer.GetAllJobs(ctx)
	if err != nil {
		return fmt.Errorf("Error listing jobs: %v", err)
	}
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, jobs[id].String(), jobs[id].Code()})
	}
	return cl.print(jobs, []string{"Job", "Status", "Code"}, rows)
}

type tasksCmd struct {
}

func (c *tasksCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <job id>",
		Short: "List the tasks of a job",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *tasksCmd) Run(cl *SchedCLIClient, cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cl.Timeout)
	defer cancel()
	tasks, err := cl.JobServer.GetJobTasks(ctx, args[0])
	if err != nil {
		return fmt.Errorf("Error listing tasks of job %s: %v", args[0], err)
	}
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, string(tasks[id])})
	}
	return cl.print(tasks, []string{"Task", "Status"}, rows)
}

type cancelJobCmd struct {
}

func (c *cancelJobCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job id>",
		Short: "Ask the job server to cancel a job",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *cancelJobCmd) Run(cl *SchedCLIClient, cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cl.Timeout)
	defer cancel()
	id := args[0]
	log.Infof("Cancelling job %s", id)
	if err := cl.JobServer.CancelJob(ctx, id); err != nil {
		return fmt.Errorf("Error cancelling job %s: %v", id, err)
	}
	fmt.Fprintf(cl.Out, "Job %s cancelling\n", id)
	return nil
}

type deleteTaskCmd struct {
}

func (c *deleteTaskCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-task <task id>",
		Short: "Delete a task from the job server",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *deleteTaskCmd) Run(cl *SchedCLIClient, cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cl.Timeout)
	defer cancel()
	id := args[0]
	if err := cl.JobServer.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("Error deleting task %s: %v", id, err)
	}
	fmt.Fprintf(cl.Out, "Task %s deleted\n", id)
	return nil
}
