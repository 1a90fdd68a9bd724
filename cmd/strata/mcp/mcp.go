// Package mcpcmder provides the mcp command serving the engine as MCP tools.
package mcpcmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/api/mcp"
	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
)

const shutdownTimeout = 10 * time.Second

type mcpCommander struct {
	flags enginecmder.Flags

	listen string
}

const mcpLongDesc string = `Serve the storage engine as Model Context Protocol tools.

Tools: analyze_content, ingest_content, hybrid_search, optimize_storage,
query_performance_report and recommendations.

By default the server speaks MCP over stdin/stdout, which is what desktop
agents expect when they launch a server process. Use --listen to serve the
streamable HTTP transport instead. Logs always go to stderr.

Examples:
  strata mcp
  strata mcp --listen :8090`

const mcpShortDesc string = "Serve the engine as MCP tools"

func NewMCPCmd() *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := enginecmder.Load(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return cmder.run(cmd.Context(), env)
		},
	}

	cmder.flags.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Serve streamable HTTP on this address instead of stdio")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context, env *enginecmder.Env) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

	server, err := mcp.NewServer(mcp.Config{
		Engine: engine,
		Logger: env.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if c.listen == "" {
		env.Logger.Info("serving MCP over stdio")
		return server.Run(ctx)
	}

	httpServer := &http.Server{
		Addr:              c.listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		env.Logger.Info("serving MCP over HTTP", "listen", c.listen)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	case <-ctx.Done():
		env.Logger.Info("shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
