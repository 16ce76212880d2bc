// Package mcp exposes the Sentry report tools over the Model Context
// Protocol. Handlers translate every taxonomy failure into the report
// envelope's error field; the protocol itself never sees a failure.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/errmon/sentry-mcp/internal/logger"
	"github.com/errmon/sentry-mcp/internal/report"
	"github.com/errmon/sentry-mcp/internal/sentry"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// Server wraps a Sentry fetcher and exposes it as MCP tools.
type Server struct {
	fetcher sentry.Fetcher
	project string // default project slug

	now func() time.Time
}

// NewServer creates the MCP server wrapper. project is the default project
// slug used when a tool call does not name one.
func NewServer(fetcher sentry.Fetcher, project string) *Server {
	return &Server{
		fetcher: fetcher,
		project: project,
		now:     time.Now,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("sentry-mcp", version, server.WithToolCapabilities(true))

	srv.AddTool(s.projectStatsTool())
	srv.AddTool(s.errorTrendsTool())
	srv.AddTool(s.impactAnalysisTool())
	srv.AddTool(s.sentryIssueTool())
	srv.AddTool(s.listIssuesTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, version string) error {
	stdioServer := server.NewStdioServer(s.MCPServer(version))
	logger.Named("mcp").Info().Str("project", s.project).Msg("serving on stdio")
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// envelope marshals a report envelope into a tool result. The envelope is
// always well-formed JSON, success or failure.
func envelope(rng *timerange.TimeRange, data any, err error) (*mcp.CallToolResult, error) {
	r := report.Build(rng, data, err)
	out, merr := json.Marshal(r)
	if merr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal report: %v", merr)), nil
	}
	if r.Error != "" {
		logger.Named("mcp").Warn().Str("error", r.Error).Msg("tool returned error envelope")
	}
	return mcp.NewToolResultText(string(out)), nil
}

// checkArgs rejects unrecognized argument keys rather than silently
// ignoring them.
func checkArgs(request mcp.CallToolRequest, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}

	var unknown []string
	for k := range request.GetArguments() {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unrecognized parameters: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// get_project_stats
func (s *Server) projectStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_project_stats",
		mcp.WithDescription("Get project-wide error statistics for a time window: distinct errors, total event volume, users affected, and an optional breakdown grouped by environment, level/type, or status."),
		mcp.WithString("time_range", mcp.Description("Time window: <n>h, <n>d, or \"all\" (default 24h)")),
		mcp.WithString("group_by", mcp.Description("Breakdown field: environment, level, type, or status")),
		mcp.WithString("environment", mcp.Description("Only count issues tagged with this environment")),
	)
	return tool, s.handleProjectStats
}

func (s *Server) handleProjectStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := checkArgs(request, "time_range", "group_by", "environment"); err != nil {
		return envelope(nil, nil, err)
	}

	rng, err := timerange.Parse(request.GetString("time_range", "24h"), s.now())
	if err != nil {
		return envelope(nil, nil, err)
	}

	issues, err := s.fetcher.FetchIssues(ctx, s.project, rng)
	if err != nil {
		return envelope(&rng, nil, err)
	}

	stats, err := report.Stats(issues, rng, report.StatsOptions{
		GroupBy:     request.GetString("group_by", ""),
		Environment: request.GetString("environment", ""),
	})
	return envelope(&rng, stats, err)
}

// get_error_trends
func (s *Server) errorTrendsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_error_trends",
		mcp.WithDescription("Rank issues by occurrence frequency within a time window. Entries below min_occurrences are dropped; ties are broken by most recent activity."),
		mcp.WithString("time_range", mcp.Description("Time window: <n>h, <n>d, or \"all\" (default 7d)")),
		mcp.WithNumber("min_occurrences", mcp.Description("Drop issues with fewer occurrences (default 0)")),
	)
	return tool, s.handleErrorTrends
}

func (s *Server) handleErrorTrends(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := checkArgs(request, "time_range", "min_occurrences"); err != nil {
		return envelope(nil, nil, err)
	}

	rng, err := timerange.Parse(request.GetString("time_range", "7d"), s.now())
	if err != nil {
		return envelope(nil, nil, err)
	}

	issues, err := s.fetcher.FetchIssues(ctx, s.project, rng)
	if err != nil {
		return envelope(&rng, nil, err)
	}

	trends := report.Trends(issues, rng, int64(request.GetInt("min_occurrences", 0)))
	return envelope(&rng, trends, nil)
}

// get_impact_analysis
func (s *Server) impactAnalysisTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_impact_analysis",
		mcp.WithDescription("Analyze user/session impact for one issue or the whole project: affected users and sessions, crash-free rate, and the releases involved. Session metrics are null when the project has no release health data."),
		mcp.WithString("time_range", mcp.Description("Time window: <n>h, <n>d, or \"all\" (default 24h)")),
		mcp.WithString("issue_id", mcp.Description("Scope the analysis to a single issue id")),
	)
	return tool, s.handleImpactAnalysis
}

func (s *Server) handleImpactAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := checkArgs(request, "time_range", "issue_id"); err != nil {
		return envelope(nil, nil, err)
	}

	rng, err := timerange.Parse(request.GetString("time_range", "24h"), s.now())
	if err != nil {
		return envelope(nil, nil, err)
	}

	issues, err := s.fetcher.FetchIssues(ctx, s.project, rng)
	if err != nil {
		return envelope(&rng, nil, err)
	}

	summary, err := report.Impact(issues, rng, request.GetString("issue_id", ""))
	return envelope(&rng, summary, err)
}

// get_sentry_issue
func (s *Server) sentryIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_sentry_issue",
		mcp.WithDescription("Get full detail for a single issue, including the latest event's stacktrace. Accepts a bare issue id or a Sentry issue URL."),
		mcp.WithString("issue_id_or_url", mcp.Required(), mcp.Description("Issue id or Sentry issue URL")),
	)
	return tool, s.handleSentryIssue
}

func (s *Server) handleSentryIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := checkArgs(request, "issue_id_or_url"); err != nil {
		return envelope(nil, nil, err)
	}

	idOrURL, err := request.RequireString("issue_id_or_url")
	if err != nil {
		return envelope(nil, nil, fmt.Errorf("missing required parameter: issue_id_or_url"))
	}

	detail, err := s.fetcher.GetIssue(ctx, idOrURL)
	return envelope(nil, detail, err)
}

// get_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_list_issues",
		mcp.WithDescription("List issues for a project with basic fields: id, title, level, status, first/last seen, event and user counts."),
		mcp.WithString("project", mcp.Description("Project slug (defaults to the configured project)")),
		mcp.WithString("time_range", mcp.Description("Time window: <n>h, <n>d, or \"all\" (default all)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := checkArgs(request, "project", "time_range"); err != nil {
		return envelope(nil, nil, err)
	}

	rng, err := timerange.Parse(request.GetString("time_range", "all"), s.now())
	if err != nil {
		return envelope(nil, nil, err)
	}

	project := request.GetString("project", s.project)
	issues, err := s.fetcher.FetchIssues(ctx, project, rng)
	if err != nil {
		return envelope(&rng, nil, err)
	}

	type issueOut struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Level      string `json:"level"`
		Status     string `json:"status"`
		FirstSeen  string `json:"first_seen"`
		LastSeen   string `json:"last_seen"`
		EventCount int64  `json:"event_count"`
		UserCount  int64  `json:"user_count"`
		Permalink  string `json:"permalink,omitempty"`
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = issueOut{
			ID:         issue.ID,
			Title:      issue.Title,
			Level:      string(issue.Level),
			Status:     string(issue.Status),
			FirstSeen:  issue.FirstSeen.Format(time.RFC3339),
			LastSeen:   issue.LastSeen.Format(time.RFC3339),
			EventCount: issue.EventCount,
			UserCount:  issue.UserCount,
			Permalink:  issue.Permalink,
		}
	}
	return envelope(&rng, out, nil)
}
