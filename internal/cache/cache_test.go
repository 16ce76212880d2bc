package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/sentry"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

type countingFetcher struct {
	calls  int
	issues []*models.Issue
}

func (f *countingFetcher) FetchIssues(_ context.Context, _ string, _ timerange.TimeRange) ([]*models.Issue, error) {
	f.calls++
	return f.issues, nil
}

func (f *countingFetcher) GetIssue(_ context.Context, issueID string) (*sentry.IssueDetail, error) {
	f.calls++
	return &sentry.IssueDetail{Issue: &models.Issue{ID: issueID}}, nil
}

func newTestStore(t *testing.T, ttl time.Duration, fetcher sentry.Fetcher) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache.db"), ttl, fetcher)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRange(t *testing.T, token string) timerange.TimeRange {
	t.Helper()
	r, err := timerange.Parse(token, time.Now())
	require.NoError(t, err)
	return r
}

func TestFetchIssues_MissThenHit(t *testing.T) {
	f := &countingFetcher{issues: []*models.Issue{
		{ID: "1", Title: "boom", EventCount: 5, LastSeen: time.Now().UTC()},
	}}
	s := newTestStore(t, time.Hour, f)
	ctx := context.Background()
	rng := testRange(t, "24h")

	first, err := s.FetchIssues(ctx, "backend", rng)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, f.calls)

	second, err := s.FetchIssues(ctx, "backend", rng)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, f.calls, "second fetch served from cache")
	assert.Equal(t, "boom", second[0].Title)
	assert.Equal(t, int64(5), second[0].EventCount)
}

func TestFetchIssues_KeyedByProjectAndToken(t *testing.T) {
	f := &countingFetcher{}
	s := newTestStore(t, time.Hour, f)
	ctx := context.Background()

	_, err := s.FetchIssues(ctx, "backend", testRange(t, "24h"))
	require.NoError(t, err)
	_, err = s.FetchIssues(ctx, "backend", testRange(t, "7d"))
	require.NoError(t, err)
	_, err = s.FetchIssues(ctx, "frontend", testRange(t, "24h"))
	require.NoError(t, err)

	assert.Equal(t, 3, f.calls, "distinct (project, token) pairs do not share entries")
}

func TestFetchIssues_TTLExpiry(t *testing.T) {
	f := &countingFetcher{}
	s := newTestStore(t, time.Nanosecond, f)
	ctx := context.Background()
	rng := testRange(t, "24h")

	_, err := s.FetchIssues(ctx, "backend", rng)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = s.FetchIssues(ctx, "backend", rng)
	require.NoError(t, err)

	assert.Equal(t, 2, f.calls, "expired entries are refetched")
}

func TestGetIssue_PassThrough(t *testing.T) {
	f := &countingFetcher{}
	s := newTestStore(t, time.Hour, f)

	detail, err := s.GetIssue(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "1001", detail.Issue.ID)

	_, err = s.GetIssue(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls, "detail lookups are never cached")
}

func TestPurge(t *testing.T) {
	f := &countingFetcher{}
	s := newTestStore(t, time.Nanosecond, f)
	ctx := context.Background()

	_, err := s.FetchIssues(ctx, "backend", testRange(t, "24h"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	purged, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
