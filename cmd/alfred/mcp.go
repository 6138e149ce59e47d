package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	alfredmcp "github.com/leonletto/alfred/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	cmd.AddCommand(mcpServeCmd())
	return cmd
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start MCP stdio server exposing alfred's suggestions as tools",
		Long: `Starts an MCP server on stdin/stdout. Agents call generate_commit_message,
suggest_branch_name, suggest_conflict_resolution, suggest_rebase_strategy and
generate instead of shelling out to alfred.

Configure in an MCP client:
  {
    "mcpServers": {
      "alfred": {
        "type": "stdio",
        "command": "alfred",
        "args": ["mcp", "serve"]
      }
    }
  }`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServe()
		},
	}
}

func runMCPServe() error {
	repoPath, err := filepath.Abs(flagRepo)
	if err != nil {
		return fmt.Errorf("resolve repo path: %w", err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}

	server := alfredmcp.NewServer(e.assistant(),
		alfredmcp.WithVersion(Version),
		alfredmcp.WithRepo(repoPath),
		alfredmcp.WithLogger(e.logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Blocks on stdio until the client disconnects.
	return server.Run(ctx)
}
