package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/errmon/sentry-mcp/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This exposes the Sentry report tools to MCP clients such as Claude
Code. Configure with:

  {
    "mcpServers": {
      "sentry": { "command": "sentry-mcp", "args": ["mcp"] }
    }
  }

Available tools: get_sentry_issue, get_list_issues, get_project_stats,
get_error_trends, get_impact_analysis`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		srv := mcpserver.NewServer(fetcher, defaultProject())
		return srv.ServeStdio(cmd.Context(), buildVersion)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
