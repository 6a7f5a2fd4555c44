package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect background jobs",
	Long: `List reindex jobs or inspect a specific job by ID. Admins see every
job; everyone else sees the jobs they started.

Examples:
  mindbase jobs           # List jobs
  mindbase jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		return showJob(ctx, out, args[0])
	}
	return listJobs(ctx, out)
}

func listJobs(ctx context.Context, out io.Writer) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if jsonOutput {
		return printJSON(out, jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "%-10s %-10s %-12s %-10s %-10s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "BY", "STARTED")
	fmt.Fprintln(out, "------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := ""
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Progress, job.Total)
		}
		started := job.StartedAt.Local().Format("15:04:05")
		fmt.Fprintf(out, "%-10s %-10s %-12s %-10s %-10s %s\n", job.ID, job.Type, job.Status, progress, job.RequestedBy, started)
	}

	return nil
}

func showJob(ctx context.Context, out io.Writer, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("job not found: %s", id)
		}
		return fmt.Errorf("get job: %w", err)
	}
	if jsonOutput {
		return printJSON(out, job)
	}

	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Type: %s\n", job.Type)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	fmt.Fprintf(out, "  Requested by: %s\n", job.RequestedBy)
	if job.Total > 0 {
		fmt.Fprintf(out, "  Progress: %d/%d\n", job.Progress, job.Total)
	}
	fmt.Fprintf(out, "  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		duration := job.CompletedAt.Sub(job.StartedAt)
		fmt.Fprintf(out, "  Duration: %s\n", duration.Round(time.Second))
	}

	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}

	if job.Result != nil {
		fmt.Fprintln(out, "\nResult:")
		printReindexResult(out, job.Result)
	}

	return nil
}
