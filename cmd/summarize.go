package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/errmon/sentry-mcp/internal/llm"
	"github.com/errmon/sentry-mcp/internal/report"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

var (
	summarizeTimeRange string
	summarizeProject   string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate an AI briefing of current error trends",
	Long: `Fetch project statistics and trending errors for the window, then ask
an LLM for a short plain-text briefing. Requires an Anthropic API key
(config anthropic.api_key or SENTRY_ANTHROPIC_API_KEY).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		project := summarizeProject
		if project == "" {
			project = defaultProject()
		}

		rng, err := timerange.Parse(summarizeTimeRange, time.Now().UTC())
		if err != nil {
			return err
		}

		issues, err := fetcher.FetchIssues(cmd.Context(), project, rng)
		if err != nil {
			return err
		}

		stats, err := report.Stats(issues, rng, report.StatsOptions{GroupBy: "level"})
		if err != nil {
			return err
		}
		trends := report.Trends(issues, rng, 0)

		ui.VerboseLog("summarizing %d trending issues", len(trends))

		client := llm.NewClient(
			viper.GetString("anthropic.api_key"),
			viper.GetString("anthropic.model"),
		)
		briefing, err := client.SummarizeTrends(cmd.Context(), project, stats, trends)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}

		fmt.Fprintln(ui.Out, briefing)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeTimeRange, "time-range", "t", "7d", "Time window (<n>h, <n>d, or all)")
	summarizeCmd.Flags().StringVarP(&summarizeProject, "project", "p", "", "Project slug (default from config)")
	rootCmd.AddCommand(summarizeCmd)
}
