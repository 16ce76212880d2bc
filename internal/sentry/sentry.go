// Package sentry talks to the Sentry REST API and maps its payloads onto
// the internal issue model. The report core consumes it only through the
// Fetcher interface.
package sentry

import (
	"context"
	"fmt"

	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// Fetcher supplies issue snapshots for a project. Implementations may
// pre-filter server-side using the resolved range.
type Fetcher interface {
	FetchIssues(ctx context.Context, project string, rng timerange.TimeRange) ([]*models.Issue, error)
	GetIssue(ctx context.Context, issueID string) (*IssueDetail, error)
}

// StackFrame is one frame of an exception stacktrace, innermost last.
type StackFrame struct {
	Function string `json:"function"`
	Module   string `json:"module,omitempty"`
	Filename string `json:"filename,omitempty"`
	LineNo   int    `json:"line_no,omitempty"`
	InApp    bool   `json:"in_app"`
}

// IssueDetail is the full single-issue view including the latest event's
// stacktrace, passed through from upstream without local computation.
type IssueDetail struct {
	Issue      *models.Issue `json:"issue"`
	Message    string        `json:"message,omitempty"`
	Stacktrace []StackFrame  `json:"stacktrace,omitempty"`
}

// UpstreamError is any failure surfaced by the Sentry API: auth, network,
// or a not-found at the service level. The message is passed through
// verbatim and never retried.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("sentry api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sentry api: %s", e.Message)
}
