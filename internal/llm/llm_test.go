package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errmon/sentry-mcp/internal/report"
)

func TestNewClient(t *testing.T) {
	c := NewClient("test-key", "claude-haiku-4-5-20251001")
	require.NotNil(t, c)
	assert.NotNil(t, c.api)
}

func TestBuildPrompt(t *testing.T) {
	stats := &report.ProjectStats{TotalErrors: 2, TotalEvents: 55}
	trends := []report.TrendEntry{
		{IssueID: "1001", Title: "TypeError in checkout", Occurrences: 50, LastSeen: time.Now()},
		{IssueID: "1002", Title: "timeout in billing", Occurrences: 5, LastSeen: time.Now()},
	}

	system, user, err := buildPrompt("backend", stats, trends)
	require.NoError(t, err)

	assert.Contains(t, system, "error-tracking reports")
	assert.Contains(t, user, "Project: backend")
	assert.Contains(t, user, "TypeError in checkout")
	assert.Contains(t, user, `"total_events":55`)
}
