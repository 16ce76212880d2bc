package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/sentry"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// ---------------------------------------------------------------------------
// Mock fetcher
// ---------------------------------------------------------------------------

type mockFetcher struct {
	issues []*models.Issue
	detail *sentry.IssueDetail

	// Track calls for verification.
	fetchedProjects []string
	fetchedRanges   []timerange.TimeRange

	// Optional error injection.
	fetchErr error
	getErr   error
}

func (m *mockFetcher) FetchIssues(_ context.Context, project string, rng timerange.TimeRange) ([]*models.Issue, error) {
	m.fetchedProjects = append(m.fetchedProjects, project)
	m.fetchedRanges = append(m.fetchedRanges, rng)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.issues, nil
}

func (m *mockFetcher) GetIssue(_ context.Context, issueID string) (*sentry.IssueDetail, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.detail, nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var frozenNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *mockFetcher) {
	t.Helper()
	mf := &mockFetcher{}
	srv := NewServer(mf, "backend")
	require.NotNil(t, srv)
	srv.now = func() time.Time { return frozenNow }
	return srv, mf
}

func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// decodedReport is the wire shape of the report envelope.
type decodedReport struct {
	TimeRange *struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"time_range"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func resultReport(t *testing.T, result *mcpgo.CallToolResult) decodedReport {
	t.Helper()
	var r decodedReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &r))
	return r
}

func seedIssue(id string, count int64, lastSeen time.Time) *models.Issue {
	return &models.Issue{
		ID:         id,
		Title:      "issue " + id,
		Level:      models.LevelError,
		Status:     models.StatusUnresolved,
		FirstSeen:  lastSeen.Add(-48 * time.Hour),
		LastSeen:   lastSeen,
		EventCount: count,
	}
}

// ---------------------------------------------------------------------------
// Tests: registration
// ---------------------------------------------------------------------------

func TestMCPServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer("test"))
}

// ---------------------------------------------------------------------------
// Tests: get_project_stats
// ---------------------------------------------------------------------------

func TestHandleProjectStats_WindowFilter(t *testing.T) {
	srv, mf := newTestServer(t)
	a := seedIssue("1", 50, frozenNow.Add(-2*time.Hour))
	a.Environment = "prod"
	b := seedIssue("2", 5, frozenNow.Add(-30*time.Hour))
	b.Environment = "prod"
	mf.issues = []*models.Issue{a, b}

	result, err := srv.handleProjectStats(context.Background(), callToolReq("get_project_stats",
		map[string]any{"time_range": "24h"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Empty(t, r.Error)
	require.NotNil(t, r.TimeRange)
	assert.Equal(t, frozenNow, r.TimeRange.End)

	var stats struct {
		TotalErrors int `json:"total_errors"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &stats))
	assert.Equal(t, 1, stats.TotalErrors, "issue outside the 24h window excluded")
	assert.Equal(t, []string{"backend"}, mf.fetchedProjects)
}

func TestHandleProjectStats_InvalidGroupField(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.issues = []*models.Issue{seedIssue("1", 5, frozenNow.Add(-time.Hour))}

	result, err := srv.handleProjectStats(context.Background(), callToolReq("get_project_stats",
		map[string]any{"time_range": "7d", "group_by": "nonexistent_field"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "nonexistent_field")
	assert.Equal(t, "null", string(r.Data), "no partial data alongside an error")
	assert.NotNil(t, r.TimeRange, "range resolved before the failure is kept")
}

func TestHandleProjectStats_InvalidTimeRange(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleProjectStats(context.Background(), callToolReq("get_project_stats",
		map[string]any{"time_range": "7x"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "7x")
	assert.Nil(t, r.TimeRange, "range omitted when resolution itself failed")
}

func TestHandleProjectStats_UpstreamError(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.fetchErr = &sentry.UpstreamError{StatusCode: 401, Message: "Invalid token"}

	result, err := srv.handleProjectStats(context.Background(), callToolReq("get_project_stats", nil))
	require.NoError(t, err, "upstream failures surface in the envelope, not the protocol")

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "Invalid token")
	assert.NotNil(t, r.TimeRange)
}

func TestHandleProjectStats_UnknownArgument(t *testing.T) {
	srv, mf := newTestServer(t)

	result, err := srv.handleProjectStats(context.Background(), callToolReq("get_project_stats",
		map[string]any{"time_range": "24h", "groupby": "environment"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "groupby")
	assert.Empty(t, mf.fetchedProjects, "nothing fetched for a rejected request")
}

// ---------------------------------------------------------------------------
// Tests: get_error_trends
// ---------------------------------------------------------------------------

func TestHandleErrorTrends_Threshold(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.issues = []*models.Issue{
		seedIssue("1", 50, frozenNow.Add(-2*time.Hour)),
		seedIssue("2", 5, frozenNow.Add(-30*time.Hour)),
	}

	result, err := srv.handleErrorTrends(context.Background(), callToolReq("get_error_trends",
		map[string]any{"time_range": "all", "min_occurrences": 10}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Empty(t, r.Error)

	var trends []struct {
		IssueID     string `json:"issue_id"`
		Occurrences int64  `json:"occurrences_in_window"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &trends))
	require.Len(t, trends, 1)
	assert.Equal(t, "1", trends[0].IssueID)
	assert.Equal(t, int64(50), trends[0].Occurrences)
}

func TestHandleErrorTrends_EmptyIsNotAnError(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleErrorTrends(context.Background(), callToolReq("get_error_trends", nil))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Empty(t, r.Error)
	assert.Equal(t, "[]", string(r.Data))
}

// ---------------------------------------------------------------------------
// Tests: get_impact_analysis
// ---------------------------------------------------------------------------

func TestHandleImpactAnalysis_IssueNotFound(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.issues = []*models.Issue{seedIssue("1", 5, frozenNow.Add(-time.Hour))}

	result, err := srv.handleImpactAnalysis(context.Background(), callToolReq("get_impact_analysis",
		map[string]any{"time_range": "24h", "issue_id": "999"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "999")
	assert.Equal(t, "null", string(r.Data))
}

func TestHandleImpactAnalysis_ProjectScope(t *testing.T) {
	srv, mf := newTestServer(t)
	a := seedIssue("1", 5, frozenNow.Add(-time.Hour))
	a.Release = "v1.0.0"
	a.Sessions = &models.SessionMetrics{AffectedUsers: 10, AffectedSessions: 20, CrashFreeRate: 0.95}
	mf.issues = []*models.Issue{a}

	result, err := srv.handleImpactAnalysis(context.Background(), callToolReq("get_impact_analysis", nil))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Empty(t, r.Error)

	var summary struct {
		Scope         string   `json:"scope"`
		AffectedUsers *int64   `json:"affected_users"`
		Releases      []string `json:"releases"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &summary))
	assert.Equal(t, "project", summary.Scope)
	require.NotNil(t, summary.AffectedUsers)
	assert.Equal(t, int64(10), *summary.AffectedUsers)
	assert.Equal(t, []string{"v1.0.0"}, summary.Releases)
}

// ---------------------------------------------------------------------------
// Tests: get_sentry_issue
// ---------------------------------------------------------------------------

func TestHandleSentryIssue(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.detail = &sentry.IssueDetail{
		Issue:   seedIssue("1001", 7, frozenNow.Add(-time.Hour)),
		Message: "boom",
		Stacktrace: []sentry.StackFrame{
			{Function: "main", Filename: "main.go", LineNo: 10, InApp: true},
		},
	}

	result, err := srv.handleSentryIssue(context.Background(), callToolReq("get_sentry_issue",
		map[string]any{"issue_id_or_url": "1001"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Empty(t, r.Error)
	assert.Contains(t, string(r.Data), "main.go")
}

func TestHandleSentryIssue_MissingArg(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSentryIssue(context.Background(), callToolReq("get_sentry_issue", nil))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "issue_id_or_url")
}

func TestHandleSentryIssue_UpstreamError(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.getErr = &sentry.UpstreamError{StatusCode: 404, Message: "The requested resource does not exist"}

	result, err := srv.handleSentryIssue(context.Background(), callToolReq("get_sentry_issue",
		map[string]any{"issue_id_or_url": "99999"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Contains(t, r.Error, "does not exist")
}

// ---------------------------------------------------------------------------
// Tests: get_list_issues
// ---------------------------------------------------------------------------

func TestHandleListIssues(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.issues = []*models.Issue{
		seedIssue("1", 50, frozenNow.Add(-time.Hour)),
		seedIssue("2", 5, frozenNow.Add(-2*time.Hour)),
	}

	result, err := srv.handleListIssues(context.Background(), callToolReq("get_list_issues",
		map[string]any{"project": "frontend"}))
	require.NoError(t, err)

	r := resultReport(t, result)
	assert.Empty(t, r.Error)
	assert.Equal(t, []string{"frontend"}, mf.fetchedProjects, "explicit project overrides the default")

	var out []struct {
		ID         string `json:"id"`
		EventCount int64  `json:"event_count"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
}

func TestHandleListIssues_DefaultProject(t *testing.T) {
	srv, mf := newTestServer(t)

	_, err := srv.handleListIssues(context.Background(), callToolReq("get_list_issues", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"backend"}, mf.fetchedProjects)
}
