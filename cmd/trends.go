package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/errmon/sentry-mcp/internal/output"
	"github.com/errmon/sentry-mcp/internal/report"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

var (
	trendsTimeRange      string
	trendsMinOccurrences int64
	trendsProject        string
	trendsJSON           bool
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Rank trending errors over a time window",
	Long: `List the project's errors active in the window, ranked by occurrence
volume. Use --min-occurrences to hide low-volume noise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		project := trendsProject
		if project == "" {
			project = defaultProject()
		}

		rng, err := timerange.Parse(trendsTimeRange, time.Now().UTC())
		if err != nil {
			return finishReport(report.Build(nil, nil, err), trendsJSON)
		}

		issues, err := fetcher.FetchIssues(cmd.Context(), project, rng)
		if err != nil {
			return finishReport(report.Build(&rng, nil, err), trendsJSON)
		}

		trends := report.Trends(issues, rng, trendsMinOccurrences)
		if trendsJSON {
			return printJSON(report.Build(&rng, trends, nil))
		}

		if len(trends) == 0 {
			ui.Info("No trending errors in %s for project %s", trendsTimeRange, project)
			return nil
		}

		ui.Info("Top %d trending errors in %s for project %s", len(trends), trendsTimeRange, project)
		fmt.Fprintf(ui.Out, "\n")

		table := ui.Table([]string{"Rank", "ID", "Level", "Occurrences", "Last Seen", "Title"})
		for i, entry := range trends {
			table.Append([]string{
				fmt.Sprintf("%d", i+1),
				entry.IssueID,
				output.LevelColor(entry.Level),
				fmt.Sprintf("%d", entry.Occurrences),
				entry.LastSeen.Format("2006-01-02 15:04"),
				entry.Title,
			})
		}
		return table.Render()
	},
}

func init() {
	trendsCmd.Flags().StringVarP(&trendsTimeRange, "time-range", "t", "7d", "Time window (<n>h, <n>d, or all)")
	trendsCmd.Flags().Int64VarP(&trendsMinOccurrences, "min-occurrences", "m", 0, "Hide entries below this occurrence count")
	trendsCmd.Flags().StringVarP(&trendsProject, "project", "p", "", "Project slug (default from config)")
	trendsCmd.Flags().BoolVar(&trendsJSON, "json", false, "Emit the raw report envelope as JSON")
	rootCmd.AddCommand(trendsCmd)
}
