package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/pkg/anthropic"
)

const systemPrompt = `You write a boardroom-ready weekly report for a UK marketing director.
Be specific, numerical, and action-oriented.
Use GBP (£) formatting, bullet points, and short headings.

For lead qualification, treat "Zoom Booked" as the qualified milestone.

The consultants section must ONLY include the consultants present in the data.

Explain attribution coverage clearly:
- Truth totals = ALL closed-won deals in the window (by close date)
- Attributed totals = deals/revenue linked to campaigns via our attribution rules
- Unattributed = truth minus attributed

If truth totals are missing, say so explicitly and do not invent them.`

const userPromptTemplate = `Generate the report in TWO main sections plus executive summary:

1) Executive Summary (truth totals + attribution coverage)
Must include:
- Total Revenue Won (truth)
- Total Deals Won (truth)
- Total Units Sold (truth)
- New prospect revenue vs older/unknown
- Attributed vs unattributed revenue and deals
- Attributed pipeline created (campaign-only)

2) A) Marketing Performance
- Top campaigns by attributed revenue (table)
- Top campaigns by attributed pipeline (table)
- Lead quality: top disqualification reasons overall
- 3-5 concrete actions

3) B) Sales Performance (Consultants Only)
For each consultant show:
- Callable leads (excluding Marketing Prospect and Not Applicable)
- Sales Qualified count
- Zoom Booked count + rate
- Disqualified count + rate
- Top 3 disqualification reasons
Then call out:
- Best/worst outliers on Zoom Booked rate and Disqualification rate
- Coaching priorities tied to reasons

Data JSON:
%s`

// Renderer turns a payload into a narrative summary.
type Renderer interface {
	Render(ctx context.Context, p Payload) (string, error)
}

// AnthropicRenderer narrates the payload with a Messages API call.
type AnthropicRenderer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicRenderer creates a renderer over the given client.
func NewAnthropicRenderer(client anthropic.Client, model string, maxTokens int64) *AnthropicRenderer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicRenderer{client: client, model: model, maxTokens: maxTokens}
}

// Render generates the boardroom narrative for one payload.
func (r *AnthropicRenderer) Render(ctx context.Context, p Payload) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal payload")
	}

	temp := 0.2
	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, string(data))},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "report: render narrative")
	}
	resp.Usage.LogCost(r.model, "report")

	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return "", eris.New("report: empty narrative response")
	}
	return text, nil
}

// PlaceholderSummary is persisted when no renderer is available, so the week
// still gets a row and the payload is not lost.
func PlaceholderSummary(p Payload) string {
	zap.L().Warn("narrative renderer unavailable, writing placeholder summary",
		zap.String("week_start", p.WeekStart))
	return fmt.Sprintf("Placeholder report for week starting %s", p.WeekStart)
}
