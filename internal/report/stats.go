package report

import (
	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// ProjectStats summarizes the issues active within a window. TotalErrors
// counts distinct issues (how many kinds of errors); TotalEvents sums raw
// occurrences (how many times errors fired).
type ProjectStats struct {
	TotalErrors   int            `json:"total_errors"`
	TotalEvents   int64          `json:"total_events"`
	UsersAffected int64          `json:"users_affected"`
	Breakdown     map[string]int `json:"breakdown,omitempty"`
	GroupedBy     string         `json:"grouped_by,omitempty"`
}

// StatsOptions hold the optional knobs for Stats.
type StatsOptions struct {
	GroupBy     string // "", environment, level, type, status
	Environment string // exact-match filter; issues without the tag are excluded
}

// Stats aggregates the in-window issue set. Issues are scoped by LastSeen
// falling inside rng. Grouping by an unrecognized field fails with
// *InvalidGroupFieldError; an unknown users_affected is reported as 0, not
// an error.
func Stats(issues []*models.Issue, rng timerange.TimeRange, opts StatsOptions) (*ProjectStats, error) {
	groupKey, err := groupKeyFunc(opts.GroupBy)
	if err != nil {
		return nil, err
	}

	stats := &ProjectStats{GroupedBy: opts.GroupBy}
	if groupKey != nil {
		stats.Breakdown = make(map[string]int)
	}

	for _, issue := range issues {
		if !rng.Contains(issue.LastSeen) {
			continue
		}
		if opts.Environment != "" && issue.Environment != opts.Environment {
			continue
		}

		stats.TotalErrors++
		stats.TotalEvents += issue.EventCount
		stats.UsersAffected += issue.UserCount

		if groupKey != nil {
			stats.Breakdown[groupKey(issue)]++
		}
	}

	return stats, nil
}

// groupKeyFunc maps a group_by field name to its extractor. A nil func with
// nil error means no grouping was requested.
func groupKeyFunc(field string) (func(*models.Issue) string, error) {
	switch field {
	case "":
		return nil, nil
	case "environment":
		return func(i *models.Issue) string { return i.Environment }, nil
	case "level", "type":
		// "type" is accepted as an alias for severity level.
		return func(i *models.Issue) string { return string(i.Level) }, nil
	case "status":
		return func(i *models.Issue) string { return string(i.Status) }, nil
	default:
		return nil, &InvalidGroupFieldError{Field: field}
	}
}
