package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/bull/speechqa/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve retrieval and answering as MCP tools",
	Long: `Builds or loads the vector store, then serves the search_context, ask and
get_index_status tools over stdio, or over Streamable HTTP at /mcp when
SERVER_MODE=true. A health check is served at /health on PORT (default 8080).`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}

	store, err := a.pipeline.OpenOrBuild(ctx)
	if err != nil {
		return ignoreCanceled(err)
	}
	defer store.Close()

	answerer := a.answerer(store)
	server := mcpserver.NewServer(&mcpserver.Config{
		Searcher: answerer.Retriever(),
		Asker:    answerer,
		Index:    store,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", a.cfg.Port),
		Handler:           mcpserver.NewMux(server, store, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if a.cfg.ServerMode {
		a.logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}

	// Stdio mode still serves /health for local checks
	go func() {
		a.logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Health server error", "error", err)
		}
	}()

	a.logger.Info("Starting speechqa MCP server (stdio mode)...")
	return ignoreCanceled(server.Run(ctx))
}
