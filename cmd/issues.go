package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/errmon/sentry-mcp/internal/output"
	"github.com/errmon/sentry-mcp/internal/report"
	"github.com/errmon/sentry-mcp/internal/sentry"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

var (
	issueListTimeRange string
	issueListProject   string
	issueListJSON      bool

	issueShowJSON bool
)

var issuesCmd = &cobra.Command{
	Use:     "issues",
	Short:   "Browse individual Sentry issues",
	Aliases: []string{"issue"},
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		project := issueListProject
		if project == "" {
			project = defaultProject()
		}

		rng, err := timerange.Parse(issueListTimeRange, time.Now().UTC())
		if err != nil {
			return finishReport(report.Build(nil, nil, err), issueListJSON)
		}

		issues, err := fetcher.FetchIssues(cmd.Context(), project, rng)
		if err != nil {
			return finishReport(report.Build(&rng, nil, err), issueListJSON)
		}

		if issueListJSON {
			return printJSON(report.Build(&rng, issues, nil))
		}

		if len(issues) == 0 {
			ui.Info("No issues in %s for project %s", issueListTimeRange, project)
			return nil
		}

		ui.Info("%d issues in %s for project %s", len(issues), issueListTimeRange, project)
		fmt.Fprintf(ui.Out, "\n")

		table := ui.Table([]string{"ID", "Level", "Status", "Events", "Users", "Last Seen", "Title"})
		for _, issue := range issues {
			table.Append([]string{
				issue.ID,
				output.LevelColor(string(issue.Level)),
				output.StatusColor(string(issue.Status)),
				fmt.Sprintf("%d", issue.EventCount),
				fmt.Sprintf("%d", issue.UserCount),
				issue.LastSeen.Format("2006-01-02 15:04"),
				issue.Title,
			})
		}
		return table.Render()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id-or-url>",
	Short: "Show one issue with its latest stacktrace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fetcher, err := getFetcher()
		if err != nil {
			return err
		}

		issueID, err := sentry.ParseIssueID(args[0])
		if err != nil {
			return finishReport(report.Build(nil, nil, err), issueShowJSON)
		}

		detail, err := fetcher.GetIssue(cmd.Context(), issueID)
		rep := report.Build(nil, detail, err)
		if issueShowJSON || rep.Error != "" {
			return finishReport(rep, issueShowJSON)
		}

		issue := detail.Issue
		fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.ID), issue.Title)
		fmt.Fprintf(ui.Out, "  Level:      %s\n", output.LevelColor(string(issue.Level)))
		fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
		fmt.Fprintf(ui.Out, "  Events:     %d\n", issue.EventCount)
		fmt.Fprintf(ui.Out, "  Users:      %d\n", issue.UserCount)
		fmt.Fprintf(ui.Out, "  First seen: %s\n", issue.FirstSeen.Format(time.RFC3339))
		fmt.Fprintf(ui.Out, "  Last seen:  %s\n", issue.LastSeen.Format(time.RFC3339))
		if issue.Culprit != "" {
			fmt.Fprintf(ui.Out, "  Culprit:    %s\n", issue.Culprit)
		}
		if issue.Permalink != "" {
			fmt.Fprintf(ui.Out, "  Link:       %s\n", issue.Permalink)
		}
		if detail.Message != "" {
			fmt.Fprintf(ui.Out, "\n%s\n", detail.Message)
		}

		if len(detail.Stacktrace) > 0 {
			fmt.Fprintf(ui.Out, "\nStacktrace (innermost last):\n")
			for _, frame := range detail.Stacktrace {
				loc := frame.Filename
				if loc == "" {
					loc = frame.Module
				}
				marker := "  "
				if frame.InApp {
					marker = output.Green("> ")
				}
				fmt.Fprintf(ui.Out, "  %s%s in %s:%d\n", marker, frame.Function, loc, frame.LineNo)
			}
		}
		return nil
	},
}

func init() {
	issueListCmd.Flags().StringVarP(&issueListTimeRange, "time-range", "t", "all", "Time window (<n>h, <n>d, or all)")
	issueListCmd.Flags().StringVarP(&issueListProject, "project", "p", "", "Project slug (default from config)")
	issueListCmd.Flags().BoolVar(&issueListJSON, "json", false, "Emit the raw report envelope as JSON")
	issueShowCmd.Flags().BoolVar(&issueShowJSON, "json", false, "Emit the raw report envelope as JSON")

	issuesCmd.AddCommand(issueListCmd)
	issuesCmd.AddCommand(issueShowCmd)
	rootCmd.AddCommand(issuesCmd)
}
