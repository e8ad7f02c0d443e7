package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics against the configured store directory.

Checks:
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum)
  - Write permissions
  - File descriptor limits (1024 minimum)
  - Embedder credentials (non-critical; surfaces as a clearer error
    than the one the embedder itself would return)`,
		Example: `  # Run diagnostics
  docindex doctor

  # Verbose output with details
  docindex doctor --verbose

  # JSON output for scripting
  docindex doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Store.Path, 0755); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", cfg.Store.Path, err)
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, cfg.Store.Path, cfg.Embeddings)

	if jsonOutput {
		return outputDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	if !preflight.NeedsCheck(cfg.Store.Path) {
		age := preflight.MarkerAge(cfg.Store.Path)
		if age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", age.Round(time.Minute))
		}
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}

	if err := preflight.MarkPassed(cfg.Store.Path); err != nil {
		return fmt.Errorf("failed to record check status: %w", err)
	}

	return nil
}

// doctorJSONOutput is the structure for --json output.
type doctorJSONOutput struct {
	Status   string                  `json:"status"`
	Checks   []doctorJSONCheckResult `json:"checks"`
	Warnings []string                `json:"warnings,omitempty"`
	Errors   []string                `json:"errors,omitempty"`
}

// doctorJSONCheckResult is a single check result for --json output.
type doctorJSONCheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheckResult, len(results)),
	}

	for i, r := range results {
		out.Checks[i] = doctorJSONCheckResult{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
