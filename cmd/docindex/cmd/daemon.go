package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/daemon"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/internal/retriever"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background search daemon",
		Long: `The daemon keeps the embedder and hybrid search engine loaded in memory
so 'docindex search' doesn't pay embedder startup cost on every invocation.

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show daemon status and health

Examples:
  docindex daemon start      # Start daemon in background
  docindex daemon start -f   # Run in foreground (for debugging)
  docindex daemon status     # Check if daemon is running
  docindex daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		Long: `Start the search daemon in the background.

The daemon keeps the catalog, hybrid search engine and embedder loaded in
memory, allowing fast CLI search responses. By default it runs in the
background; use --foreground for debugging or to see logs in real time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd.Context(), cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the running search daemon.

Sends SIGTERM to the daemon process for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Show the current status of the search daemon.

Displays whether the daemon is running, its process ID, uptime, embedder
status, and number of libraries loaded in the catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	daemonCfg := daemon.DefaultConfig()

	client := daemon.NewClient(daemonCfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
		logCfg := logging.DefaultConfig()
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}

		out.Status("", "Starting daemon in foreground...")
		out.Status("", fmt.Sprintf("Socket: %s", daemonCfg.SocketPath))
		out.Status("", fmt.Sprintf("Logs: %s", logging.DefaultLogPath()))
		out.Status("", "Press Ctrl+C to stop")
		out.Newline()

		slog.Info("daemon starting in foreground mode",
			slog.String("socket", daemonCfg.SocketPath),
			slog.String("log_file", logging.DefaultLogPath()))

		return runDaemonForeground(ctx, cmd, daemonCfg)
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	bgCmd := exec.Command(execPath, "daemon", "start", "--foreground")
	bgCmd.Stdout = nil
	bgCmd.Stderr = nil
	bgCmd.Stdin = nil

	bgCmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for i := 0; i < 20; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return fmt.Errorf("daemon process exited unexpectedly with code 0")
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Success(fmt.Sprintf("Daemon started (pid: %d)", bgCmd.Process.Pid))
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout")
}

// runDaemonForeground builds the runtime stack, wires it into a daemon.Server
// and daemon.CompactionManager, writes the PID file, and blocks until ctx is
// cancelled or the process receives a termination signal.
func runDaemonForeground(ctx context.Context, cmd *cobra.Command, daemonCfg daemon.Config) error {
	if err := daemonCfg.EnsureDir(); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer a.Close()

	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() { _ = os.Remove(daemonCfg.PIDPath) }()

	compactor := daemon.NewCompactionManager(a.engine, cfg.Compaction)
	compactor.Start(ctx)
	defer compactor.Stop()

	server, err := daemon.NewServer(daemonCfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create daemon server: %w", err)
	}
	server.SetHandler(&engineRequestHandler{app: a, compactor: compactor})

	return server.ListenAndServe(ctx)
}

// engineRequestHandler bridges the daemon's JSON-RPC surface to the shared
// runtime stack, mirroring the hybrid search path the MCP search_docs tool
// takes (internal/mcp/server.go).
type engineRequestHandler struct {
	app       *app
	compactor *daemon.CompactionManager
}

func (h *engineRequestHandler) HandleSearch(ctx context.Context, params daemon.SearchParams) ([]daemon.SearchResult, error) {
	opts := retriever.SearchOptions{
		Limit:    params.Limit,
		BM25Only: params.BM25Only,
		Explain:  params.Explain,
	}

	lib, found, err := h.app.catalog.GetLibraryByName(ctx, params.Library)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("library %q not found", params.Library)
	}
	v, found, err := h.app.catalog.GetVersionByName(ctx, lib.ID, params.Version)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("version %q not found for library %q", params.Version, params.Library)
	}

	results, err := h.app.engine.Search(ctx, lib.ID, v.ID, params.Query, opts)
	if h.compactor != nil {
		h.compactor.OnSearchComplete()
	}
	if err != nil {
		return nil, err
	}

	out := make([]daemon.SearchResult, 0, len(results))
	for _, r := range results {
		dr := daemon.SearchResult{
			URL:      r.URL,
			Title:    r.Title,
			Content:  r.Content,
			MimeType: string(r.MimeType),
			Score:    r.Score,
		}
		if r.Explain != nil {
			dr.Explain = &daemon.ExplainData{
				Query:             r.Explain.Query,
				BM25ResultCount:   r.Explain.BM25ResultCount,
				VectorResultCount: r.Explain.VectorResultCount,
				BM25Weight:        r.Explain.Weights.BM25,
				SemanticWeight:    r.Explain.Weights.Semantic,
				RRFConstant:       r.Explain.RRFConstant,
				BM25Only:          r.Explain.BM25Only,
				DimensionMismatch: r.Explain.DimensionMismatch,
			}
		}
		out = append(out, dr)
	}
	return out, nil
}

func (h *engineRequestHandler) GetStatus() daemon.StatusResult {
	status := daemon.StatusResult{
		EmbedderType:   h.app.embedder.ModelName(),
		EmbedderStatus: "ready",
	}
	if !h.app.embedder.Available(context.Background()) {
		status.EmbedderStatus = "fallback"
	}

	libs, err := h.app.catalog.ListLibraries(context.Background())
	if err == nil {
		status.LibrariesLoaded = len(libs)
	}
	return status
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	pidFile := daemon.NewPIDFile(cfg.PIDPath)

	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success(fmt.Sprintf("Daemon stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}

	out.Success("Daemon killed")
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.DefaultConfig()

	client := daemon.NewClient(cfg)

	if !client.IsRunning() {
		if jsonOutput {
			status := daemon.StatusResult{Running: false}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'docindex daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out.Status("", "Daemon is running")
	out.Status("", fmt.Sprintf("  PID:              %d", status.PID))
	out.Status("", fmt.Sprintf("  Uptime:           %s", status.Uptime))
	out.Status("", fmt.Sprintf("  Embedder:         %s (%s)", status.EmbedderType, status.EmbedderStatus))
	out.Status("", fmt.Sprintf("  Libraries loaded: %d", status.LibrariesLoaded))
	out.Status("", fmt.Sprintf("  Socket:           %s", cfg.SocketPath))

	return nil
}
