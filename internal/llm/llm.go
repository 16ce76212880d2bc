package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/errmon/sentry-mcp/internal/report"
)

// Client wraps the Anthropic API for report summarization.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for trend summarization.
func buildPrompt(project string, stats *report.ProjectStats, trends []report.TrendEntry) (system string, user string, err error) {
	system = `You summarize error-tracking reports for engineers. Given project statistics and a ranked list of trending errors, write a short plain-text briefing:

- Open with one sentence on overall error volume and how many distinct issues are active
- Call out the top 2-3 trending errors by name with their occurrence counts
- Flag anything notable (a single issue dominating the volume, fatal-level entries, very recent first_seen dates suggesting a fresh regression)
- Keep it under 150 words, no markdown headings, no bullet points unless listing the top errors`

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return "", "", fmt.Errorf("marshal stats: %w", err)
	}
	trendsJSON, err := json.Marshal(trends)
	if err != nil {
		return "", "", fmt.Errorf("marshal trends: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Project: ")
	sb.WriteString(project)
	sb.WriteString("\n\nStatistics:\n")
	sb.Write(statsJSON)
	sb.WriteString("\n\nTrending errors (ranked):\n")
	sb.Write(trendsJSON)
	user = sb.String()
	return system, user, nil
}

// SummarizeTrends sends a trend report to the LLM and returns a prose
// briefing.
func (c *Client) SummarizeTrends(ctx context.Context, project string, stats *report.ProjectStats, trends []report.TrendEntry) (string, error) {
	systemPrompt, userPrompt, err := buildPrompt(project, stats, trends)
	if err != nil {
		return "", err
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}
