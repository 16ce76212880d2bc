package report

import (
	"sort"

	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// ImpactSummary describes user/session impact for one issue or the whole
// project. The session-derived fields are nil when the input records carry
// no session metrics; they are never fabricated.
type ImpactSummary struct {
	Scope            string   `json:"scope"` // issue id or "project"
	IssueCount       int      `json:"issue_count"`
	AffectedUsers    *int64   `json:"affected_users"`
	AffectedSessions *int64   `json:"affected_sessions"`
	CrashFreeRate    *float64 `json:"crash_free_rate"`
	Releases         []string `json:"releases"`
}

// Impact computes session-level impact for the issue named by issueID, or
// across the whole in-window set when issueID is empty. A non-empty issueID
// absent from the input fails with *IssueNotFoundError.
func Impact(issues []*models.Issue, rng timerange.TimeRange, issueID string) (*ImpactSummary, error) {
	scope := issues
	summary := &ImpactSummary{Scope: "project"}

	if issueID != "" {
		scope = nil
		for _, issue := range issues {
			if issue.ID == issueID {
				scope = []*models.Issue{issue}
				break
			}
		}
		if scope == nil {
			return nil, &IssueNotFoundError{ID: issueID}
		}
		summary.Scope = issueID
	}

	var (
		users, sessions int64
		rateSum         float64
		withMetrics     int
	)
	releases := make(map[string]struct{})

	for _, issue := range scope {
		if issueID == "" && !rng.Contains(issue.LastSeen) {
			continue
		}
		summary.IssueCount++

		if issue.Release != "" {
			releases[issue.Release] = struct{}{}
		}
		if m := issue.Sessions; m != nil {
			users += m.AffectedUsers
			sessions += m.AffectedSessions
			rateSum += m.CrashFreeRate
			withMetrics++
		}
	}

	if withMetrics > 0 {
		rate := rateSum / float64(withMetrics)
		summary.AffectedUsers = &users
		summary.AffectedSessions = &sessions
		summary.CrashFreeRate = &rate
	}

	summary.Releases = make([]string, 0, len(releases))
	for r := range releases {
		summary.Releases = append(summary.Releases, r)
	}
	sort.Strings(summary.Releases)

	return summary, nil
}
