// Package report derives structured error reports from issue snapshots:
// project statistics, trend rankings, and user/session impact summaries.
// Everything in this package is a pure function over its inputs, so
// concurrent requests need no coordination.
package report

import (
	"fmt"

	"github.com/errmon/sentry-mcp/internal/timerange"
)

// Report is the uniform response envelope for every tool. Exactly one of
// Data or Error is populated.
type Report struct {
	TimeRange *timerange.TimeRange `json:"time_range"`
	Data      any                  `json:"data"`
	Error     string               `json:"error,omitempty"`
}

// Build wraps a result or a failure in the envelope. The range is included
// even on failure when it was resolved before the failure occurred; pass nil
// when range resolution itself failed.
func Build(rng *timerange.TimeRange, data any, err error) Report {
	if err != nil {
		return Report{TimeRange: rng, Error: err.Error()}
	}
	return Report{TimeRange: rng, Data: data}
}

// InvalidGroupFieldError reports an unrecognized group_by field name.
type InvalidGroupFieldError struct {
	Field string
}

func (e *InvalidGroupFieldError) Error() string {
	return fmt.Sprintf("invalid group_by field %q: use environment, level, type, or status", e.Field)
}

// IssueNotFoundError reports an issue id absent from the fetched scope.
type IssueNotFoundError struct {
	ID string
}

func (e *IssueNotFoundError) Error() string {
	return fmt.Sprintf("issue not found: %s", e.ID)
}
