package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/errmon/sentry-mcp/internal/report"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

var (
	statsTimeRange   string
	statsGroupBy     string
	statsEnvironment string
	statsProject     string
	statsJSON        bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate error statistics for a project",
	Long: `Aggregate the project's issues over a time window: total distinct
errors, total event volume, affected users, and an optional breakdown
grouped by environment, level, or status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		project := statsProject
		if project == "" {
			project = defaultProject()
		}

		rng, err := timerange.Parse(statsTimeRange, time.Now().UTC())
		if err != nil {
			return finishReport(report.Build(nil, nil, err), statsJSON)
		}

		issues, err := fetcher.FetchIssues(cmd.Context(), project, rng)
		if err != nil {
			return finishReport(report.Build(&rng, nil, err), statsJSON)
		}

		stats, err := report.Stats(issues, rng, report.StatsOptions{
			GroupBy:     statsGroupBy,
			Environment: statsEnvironment,
		})
		rep := report.Build(&rng, stats, err)
		if statsJSON || rep.Error != "" {
			return finishReport(rep, statsJSON)
		}

		ui.Info("Project %s over %s (%s to %s)",
			project, statsTimeRange,
			rng.Start.Format(time.RFC3339), rng.End.Format(time.RFC3339))
		fmt.Fprintf(ui.Out, "\n")
		fmt.Fprintf(ui.Out, "  Errors:         %d\n", stats.TotalErrors)
		fmt.Fprintf(ui.Out, "  Events:         %d\n", stats.TotalEvents)
		fmt.Fprintf(ui.Out, "  Users affected: %d\n", stats.UsersAffected)

		if stats.GroupedBy != "" {
			fmt.Fprintf(ui.Out, "\n")
			table := ui.Table([]string{stats.GroupedBy, "Errors"})
			keys := make([]string, 0, len(stats.Breakdown))
			for k := range stats.Breakdown {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				table.Append([]string{k, fmt.Sprintf("%d", stats.Breakdown[k])})
			}
			if err := table.Render(); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsTimeRange, "time-range", "t", "24h", "Time window (<n>h, <n>d, or all)")
	statsCmd.Flags().StringVarP(&statsGroupBy, "group-by", "g", "", "Group breakdown by field (environment, level, status)")
	statsCmd.Flags().StringVarP(&statsEnvironment, "environment", "e", "", "Only count issues from this environment")
	statsCmd.Flags().StringVarP(&statsProject, "project", "p", "", "Project slug (default from config)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Emit the raw report envelope as JSON")
	rootCmd.AddCommand(statsCmd)
}

// finishReport ends a report command: as JSON it always prints the
// envelope, otherwise a failure envelope becomes a command error.
func finishReport(rep report.Report, asJSON bool) error {
	if asJSON {
		return printJSON(rep)
	}
	if rep.Error != "" {
		return errors.New(rep.Error)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
