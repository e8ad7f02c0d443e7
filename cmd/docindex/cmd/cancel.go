package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/mcp"
	"github.com/Aman-CERP/docindex/internal/output"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and control background scrape/refresh jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsCancelCmd())
	cmd.AddCommand(newJobsClearCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [job-id]",
		Short: "Show scheduling status of background jobs",
		Long: `Show the scheduling status of one scrape/refresh job, or every
job still tracked in memory when no job id is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) > 0 {
				jobID = args[0]
			}
			return runJobsList(cmd.Context(), cmd, jobID, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running scrape or refresh job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsCancel(cmd.Context(), cmd, args[0])
		},
	}
}

func newJobsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop in-memory bookkeeping for finished jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobsClear(cmd.Context(), cmd)
		},
	}
}

func runJobsList(ctx context.Context, cmd *cobra.Command, jobID string, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer a.Close()

	args := map[string]any{}
	if jobID != "" {
		args["job_id"] = jobID
	}

	raw, err := a.server.CallTool(ctx, "get_job_info", args)
	if err != nil {
		return fmt.Errorf("get job info failed: %w", err)
	}

	result, ok := raw.(mcp.GetJobInfoOutput)
	if !ok {
		return fmt.Errorf("unexpected get_job_info result type %T", raw)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Jobs)
	}

	if len(result.Jobs) == 0 {
		out.Status("", "No jobs tracked")
		return nil
	}

	for _, j := range result.Jobs {
		out.Status("", fmt.Sprintf("%s  %-10s %-8s %s/%s  %d/%d pages", j.JobID, j.Kind, j.Status, j.Library, j.Version, j.Pages, j.MaxPages))
		if j.Error != "" {
			out.Status("", "   error: "+j.Error)
		}
	}

	return nil
}

func runJobsCancel(ctx context.Context, cmd *cobra.Command, jobID string) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer a.Close()

	raw, err := a.server.CallTool(ctx, "cancel_job", map[string]any{"job_id": jobID})
	if err != nil {
		return fmt.Errorf("cancel job failed: %w", err)
	}

	result, ok := raw.(mcp.CancelJobOutput)
	if !ok {
		return fmt.Errorf("unexpected cancel_job result type %T", raw)
	}

	if result.Cancelled {
		out.Success("Job cancelled")
	} else {
		out.Status("", "Job was not running")
	}

	return nil
}

func runJobsClear(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer a.Close()

	raw, err := a.server.CallTool(ctx, "clear_completed_jobs", map[string]any{})
	if err != nil {
		return fmt.Errorf("clear completed jobs failed: %w", err)
	}

	result, ok := raw.(mcp.ClearCompletedJobsOutput)
	if !ok {
		return fmt.Errorf("unexpected clear_completed_jobs result type %T", raw)
	}

	out.Successf("Cleared %d completed job(s)", result.Cleared)

	return nil
}
