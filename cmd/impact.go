package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/errmon/sentry-mcp/internal/report"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

var (
	impactTimeRange string
	impactIssueID   string
	impactProject   string
	impactJSON      bool
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Summarize user and session impact",
	Long: `Summarize how errors affect users: affected user and session counts,
crash-free rate, and the releases involved. Scope is the whole project
over the window, or a single issue via --issue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		project := impactProject
		if project == "" {
			project = defaultProject()
		}

		rng, err := timerange.Parse(impactTimeRange, time.Now().UTC())
		if err != nil {
			return finishReport(report.Build(nil, nil, err), impactJSON)
		}

		issues, err := fetcher.FetchIssues(cmd.Context(), project, rng)
		if err != nil {
			return finishReport(report.Build(&rng, nil, err), impactJSON)
		}

		summary, err := report.Impact(issues, rng, impactIssueID)
		rep := report.Build(&rng, summary, err)
		if impactJSON || rep.Error != "" {
			return finishReport(rep, impactJSON)
		}

		ui.Info("Impact for %s (%s scope)", project, summary.Scope)
		fmt.Fprintf(ui.Out, "\n")
		fmt.Fprintf(ui.Out, "  Issues:            %d\n", summary.IssueCount)
		if summary.AffectedUsers != nil {
			fmt.Fprintf(ui.Out, "  Affected users:    %d\n", *summary.AffectedUsers)
		} else {
			fmt.Fprintf(ui.Out, "  Affected users:    unknown\n")
		}
		if summary.AffectedSessions != nil {
			fmt.Fprintf(ui.Out, "  Affected sessions: %d\n", *summary.AffectedSessions)
		} else {
			fmt.Fprintf(ui.Out, "  Affected sessions: unknown\n")
		}
		if summary.CrashFreeRate != nil {
			fmt.Fprintf(ui.Out, "  Crash-free rate:   %.2f%%\n", *summary.CrashFreeRate)
		} else {
			fmt.Fprintf(ui.Out, "  Crash-free rate:   unknown\n")
		}
		if len(summary.Releases) > 0 {
			fmt.Fprintf(ui.Out, "  Releases:          %s\n", strings.Join(summary.Releases, ", "))
		}
		return nil
	},
}

func init() {
	impactCmd.Flags().StringVarP(&impactTimeRange, "time-range", "t", "24h", "Time window (<n>h, <n>d, or all)")
	impactCmd.Flags().StringVarP(&impactIssueID, "issue", "i", "", "Scope to a single issue ID")
	impactCmd.Flags().StringVarP(&impactProject, "project", "p", "", "Project slug (default from config)")
	impactCmd.Flags().BoolVar(&impactJSON, "json", false, "Emit the raw report envelope as JSON")
	rootCmd.AddCommand(impactCmd)
}
