package report

import (
	"sort"
	"time"

	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// TrendEntry is one ranked issue in a trend report, produced fresh per
// request.
type TrendEntry struct {
	IssueID     string    `json:"issue_id"`
	Title       string    `json:"title"`
	Level       string    `json:"level"`
	Occurrences int64     `json:"occurrences_in_window"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Trends ranks in-window issues by occurrence count, dropping entries below
// minOccurrences. Occurrences are taken from the issue-level EventCount;
// there is no per-event log at this layer, so window scoping applies at the
// issue level. Ordering is occurrences desc, then LastSeen desc, then
// IssueID asc. An empty result is not an error.
func Trends(issues []*models.Issue, rng timerange.TimeRange, minOccurrences int64) []TrendEntry {
	entries := make([]TrendEntry, 0, len(issues))
	for _, issue := range issues {
		if !rng.Contains(issue.LastSeen) {
			continue
		}
		if issue.EventCount < minOccurrences {
			continue
		}
		entries = append(entries, TrendEntry{
			IssueID:     issue.ID,
			Title:       issue.Title,
			Level:       string(issue.Level),
			Occurrences: issue.EventCount,
			FirstSeen:   issue.FirstSeen,
			LastSeen:    issue.LastSeen,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.IssueID < b.IssueID
	})

	return entries
}
