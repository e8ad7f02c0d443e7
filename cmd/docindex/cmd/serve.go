package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/httpapi"
	"github.com/Aman-CERP/docindex/internal/logging"
)

func newServeCmd() *cobra.Command {
	var transport string
	var httpAddr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the DocIndex MCP server, exposing search_docs, scrape_docs,
list_libraries, refresh_version and the rest of the tool surface to an
MCP client such as Claude Code or Cursor.

The server speaks JSON-RPC over stdio by default. stdout is reserved
exclusively for the protocol; all status and error output goes to the
log file (~/.docindex/logs by default, or wherever --debug points).

The same tool surface is also reachable over HTTP, for the operator UI
and for scripting against a running daemon without an MCP client. Set
--http-addr to a non-empty address to serve both at once.`,
		Example: `  # Run over stdio, as an MCP client would launch it
  docindex serve

  # Also expose the operator HTTP API on :8765
  docindex serve --http-addr :8765

  # Run with debug logging enabled
  docindex serve --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, httpAddr, debug)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Also serve the operator HTTP API on this address (default: config server.http_addr, disabled if empty)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to ~/.docindex/logs/")

	return cmd
}

// runServe builds the runtime stack and serves the MCP protocol over the
// requested transport, plus the operator HTTP API if an address is
// configured. stdout must stay reserved for JSON-RPC frames, so all
// diagnostics are routed to the log file instead.
func runServe(ctx context.Context, transport, httpAddr string, debug bool) error {
	logCfg := logging.DefaultConfig()
	if debug {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer a.Close()

	if httpAddr == "" {
		httpAddr = cfg.Server.HTTPAddr
	}

	slog.Info("mcp_server_starting", slog.String("transport", transport), slog.String("http_addr", httpAddr))

	group, gctx := errgroup.WithContext(ctx)

	if httpAddr != "" {
		httpServer := &http.Server{
			Addr:    httpAddr,
			Handler: httpapi.NewRouter(a.server, logger).Handler(),
		}
		group.Go(func() error {
			<-gctx.Done()
			return httpServer.Close()
		})
		group.Go(func() error {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http api server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		switch transport {
		case "stdio", "":
			return a.server.MCPServer().Run(gctx, &sdkmcp.StdioTransport{})
		default:
			return fmt.Errorf("unsupported transport %q (only stdio is implemented)", transport)
		}
	})

	return group.Wait()
}
