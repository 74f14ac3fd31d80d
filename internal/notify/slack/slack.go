// Package slack posts triage summaries to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/triage"
)

const (
	maxReplyLen     = 2500
	maxRationaleLen = 500
	httpTimeout     = 10 * time.Second
)

// Notifier sends triage events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts a triage summary to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, ev *triage.Event) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(ev))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "ticket_id", ev.Ticket.ID, "priority", ev.Result.Priority)
	return nil
}

func buildMessage(ev *triage.Event) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(ev),
			{"type": "divider"},
			fieldsBlock(ev),
			{"type": "divider"},
			rationaleBlock(ev),
			replyBlock(ev),
			{"type": "divider"},
			contextBlock(ev),
		},
	}
}

func headerBlock(ev *triage.Event) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s: %s", priorityEmoji(ev.Result.Priority), ev.Result.Priority, ev.Ticket.Title),
		},
	}
}

func fieldsBlock(ev *triage.Event) map[string]any {
	assignee := "_unassigned_"
	if ev.Result.SuggestedAssignee != nil {
		assignee = *ev.Result.SuggestedAssignee
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Priority:* %s", ev.Result.Priority)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence:* %.0f%%", ev.Result.Confidence*100)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Assignee:* %s", assignee)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Customer:* %s", ev.Ticket.CustomerEmail)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Model:* %s", shortModel(ev.Result.Model))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:* %dms", ev.Result.DurationMS)},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func rationaleBlock(ev *triage.Event) map[string]any {
	text := "*Why this priority*\n" + truncate(ev.Result.PriorityRationale, maxRationaleLen)
	if ev.Result.AssigneeRationale != nil && *ev.Result.AssigneeRationale != "" {
		text += "\n*Why this assignee*\n" + truncate(*ev.Result.AssigneeRationale, maxRationaleLen)
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func replyBlock(ev *triage.Event) map[string]any {
	text := truncate(ev.Result.ReplyDraft, maxReplyLen)
	if text == "" {
		text = "_No reply drafted._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Draft reply*\n\n%s", text),
		},
	}
}

func contextBlock(ev *triage.Event) map[string]any {
	ts := ev.Result.TriagedAt
	if ts.IsZero() {
		ts = ev.Ticket.UpdatedAt
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("helpdesk • ticket %s • %s", ev.Ticket.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func priorityEmoji(p ticket.Priority) string {
	switch p {
	case ticket.PriorityP0:
		return "\U0001f534" // red circle
	case ticket.PriorityP1:
		return "\U0001f7e0" // orange circle
	case ticket.PriorityP2:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// dateModelRe matches model names ending with a YYYYMMDD date suffix.
var dateModelRe = regexp.MustCompile(`-\d{8}$`)

func shortModel(model string) string {
	return dateModelRe.ReplaceAllString(model, "")
}

// truncate shortens s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit-3]) + "..."
}

var _ triage.Notifier = (*Notifier)(nil)
