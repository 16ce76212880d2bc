package sentry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/errmon/sentry-mcp/internal/logger"
	"github.com/errmon/sentry-mcp/internal/models"
	"github.com/errmon/sentry-mcp/internal/timerange"
)

// DefaultBaseURL is the hosted Sentry API root.
const DefaultBaseURL = "https://sentry.io/api/0"

// Client implements Fetcher against the Sentry REST API.
type Client struct {
	baseURL   string
	authToken string
	org       string
	http      *http.Client

	mu         sync.Mutex
	projectIDs map[string]string // slug -> numeric id
}

// NewClient creates a Sentry API client for one organization. baseURL may be
// empty to use hosted Sentry.
func NewClient(baseURL, authToken, org string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		org:        org,
		http:       &http.Client{Timeout: 30 * time.Second},
		projectIDs: make(map[string]string),
	}
}

// get performs an authenticated GET and decodes the JSON response into out.
// Non-2xx responses become *UpstreamError with the upstream detail verbatim.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &UpstreamError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Named("sentry").Error().Err(err).Str("endpoint", endpoint).Msg("api request failed")
		return &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Named("sentry").Error().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Msg("api request rejected")
		return &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamDetail(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// upstreamDetail extracts Sentry's {"detail": "..."} message when present.
func upstreamDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}

// projectID resolves a project slug to its numeric id, caching the result.
func (c *Client) projectID(ctx context.Context, slug string) (string, error) {
	c.mu.Lock()
	id, ok := c.projectIDs[slug]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var projects []struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	if err := c.get(ctx, fmt.Sprintf("organizations/%s/projects/", c.org), nil, &projects); err != nil {
		return "", err
	}

	for _, p := range projects {
		if p.Slug == slug {
			c.mu.Lock()
			c.projectIDs[slug] = p.ID
			c.mu.Unlock()
			return p.ID, nil
		}
	}
	return "", &UpstreamError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("project %s not found in organization %s", slug, c.org)}
}

// apiIssue mirrors the issue-list payload. Sentry serializes count as a
// string; userCount is numeric.
type apiIssue struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Culprit     string          `json:"culprit"`
	Level       string          `json:"level"`
	Status      string          `json:"status"`
	FirstSeen   time.Time       `json:"firstSeen"`
	LastSeen    time.Time       `json:"lastSeen"`
	Count       string          `json:"count"`
	UserCount   int64           `json:"userCount"`
	Permalink   string          `json:"permalink"`
	Environment string          `json:"environment"`
	LastRelease *struct {
		Version string `json:"version"`
	} `json:"lastRelease"`
	SessionStats *struct {
		Users         int64   `json:"users"`
		Sessions      int64   `json:"sessions"`
		CrashFreeRate float64 `json:"crashFreeRate"`
	} `json:"sessionStats"`
}

func (a *apiIssue) toModel() *models.Issue {
	count, _ := strconv.ParseInt(a.Count, 10, 64)
	issue := &models.Issue{
		ID:          a.ID,
		Title:       a.Title,
		Culprit:     a.Culprit,
		Level:       models.Level(a.Level),
		Status:      models.Status(a.Status),
		FirstSeen:   a.FirstSeen,
		LastSeen:    a.LastSeen,
		EventCount:  count,
		UserCount:   a.UserCount,
		Environment: a.Environment,
		Permalink:   a.Permalink,
	}
	if a.LastRelease != nil {
		issue.Release = a.LastRelease.Version
	}
	if s := a.SessionStats; s != nil {
		issue.Sessions = &models.SessionMetrics{
			AffectedUsers:    s.Users,
			AffectedSessions: s.Sessions,
			CrashFreeRate:    s.CrashFreeRate,
		}
	}
	return issue
}

// FetchIssues returns the issue snapshot for a project, pre-filtered
// server-side by the resolved range where the API supports it. Results are
// read-only for the duration of the request.
func (c *Client) FetchIssues(ctx context.Context, project string, rng timerange.TimeRange) ([]*models.Issue, error) {
	id, err := c.projectID(ctx, project)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("project", id)
	params.Set("limit", "100")
	if !rng.All() {
		params.Set("statsPeriod", rng.Token)
	}

	var raw []apiIssue
	if err := c.get(ctx, fmt.Sprintf("organizations/%s/issues/", c.org), params, &raw); err != nil {
		return nil, err
	}

	issues := make([]*models.Issue, len(raw))
	for i := range raw {
		issues[i] = raw[i].toModel()
	}

	logger.Named("sentry").Debug().
		Str("project", project).
		Str("time_range", rng.Token).
		Int("issues", len(issues)).
		Msg("fetched issues")
	return issues, nil
}

// GetIssue returns the full detail for one issue, including the latest
// event's stacktrace. issueID may be a bare id or a Sentry issue URL.
func (c *Client) GetIssue(ctx context.Context, issueID string) (*IssueDetail, error) {
	id, err := ParseIssueID(issueID)
	if err != nil {
		return nil, err
	}

	var raw apiIssue
	if err := c.get(ctx, fmt.Sprintf("issues/%s/", id), nil, &raw); err != nil {
		return nil, err
	}

	detail := &IssueDetail{Issue: raw.toModel()}

	// Latest event carries the stacktrace; its absence is not fatal.
	var event struct {
		Message string `json:"message"`
		Entries []struct {
			Type string `json:"type"`
			Data struct {
				Values []struct {
					Stacktrace *struct {
						Frames []struct {
							Function string `json:"function"`
							Module   string `json:"module"`
							Filename string `json:"filename"`
							LineNo   int    `json:"lineNo"`
							InApp    bool   `json:"inApp"`
						} `json:"frames"`
					} `json:"stacktrace"`
				} `json:"values"`
			} `json:"data"`
		} `json:"entries"`
	}
	if err := c.get(ctx, fmt.Sprintf("issues/%s/events/latest/", id), nil, &event); err != nil {
		logger.Named("sentry").Warn().Err(err).Str("issue", id).Msg("no latest event available")
		return detail, nil
	}

	detail.Message = event.Message
	for _, entry := range event.Entries {
		if entry.Type != "exception" {
			continue
		}
		for _, v := range entry.Data.Values {
			if v.Stacktrace == nil {
				continue
			}
			for _, f := range v.Stacktrace.Frames {
				detail.Stacktrace = append(detail.Stacktrace, StackFrame{
					Function: f.Function,
					Module:   f.Module,
					Filename: f.Filename,
					LineNo:   f.LineNo,
					InApp:    f.InApp,
				})
			}
		}
	}
	return detail, nil
}

// ParseIssueID accepts a bare numeric issue id or a Sentry issue URL
// (e.g. https://sentry.io/organizations/acme/issues/12345/) and returns the
// id segment.
func ParseIssueID(idOrURL string) (string, error) {
	s := strings.TrimSpace(idOrURL)
	if s == "" {
		return "", &UpstreamError{Message: "empty issue id"}
	}

	if !strings.Contains(s, "/") {
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", &UpstreamError{Message: fmt.Sprintf("invalid issue URL: %s", idOrURL)}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "issues" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", &UpstreamError{Message: fmt.Sprintf("no issue id found in URL: %s", idOrURL)}
}
