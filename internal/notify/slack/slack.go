// Package slack sends incident and automation notifications to Slack via
// incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NeodarZ/prefect/internal/automation"
	"github.com/NeodarZ/prefect/internal/incident"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier posts messages to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, all sends are
// no-ops.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// NotifyDeclared posts a newly declared incident.
func (n *Notifier) NotifyDeclared(ctx context.Context, inc *incident.Incident) error {
	return n.post(ctx, incidentMessage(inc, "Incident Declared"))
}

// NotifyResolved posts a resolved incident.
func (n *Notifier) NotifyResolved(ctx context.Context, inc *incident.Incident) error {
	return n.post(ctx, incidentMessage(inc, "Incident Resolved"))
}

// NotifyFiring posts a trigger firing.
func (n *Notifier) NotifyFiring(ctx context.Context, f *automation.Firing) error {
	return n.post(ctx, firingMessage(f))
}

func (n *Notifier) post(ctx context.Context, msg map[string]any) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(msg)
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
	return nil
}

func incidentMessage(inc *incident.Incident, title string) map[string]any {
	summary := truncate(inc.Summary, maxSummaryLen)
	if summary == "" {
		summary = "_No summary provided._"
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Status:* %s", inc.Status)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", inc.Severity)},
	}
	if inc.DeclaredBy != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn", "text": fmt.Sprintf("*Declared by:* %s", inc.DeclaredBy),
		})
	}
	if !inc.ResolvedAt.IsZero() {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duration:* %s", inc.ResolvedAt.Sub(inc.CreatedAt).Round(time.Second)),
		})
	}

	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s %s: %s", severityEmoji(inc.Severity), title, inc.Name),
				},
			},
			{"type": "divider"},
			{"type": "section", "fields": fields},
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": summary},
			},
			{
				"type": "context",
				"elements": []map[string]any{{
					"type": "mrkdwn",
					"text": fmt.Sprintf("prefect • incident %s • %s", inc.ID, inc.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
				}},
			},
		},
	}
}

func firingMessage(f *automation.Firing) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "⚡ Trigger Fired: " + f.Trigger.Name,
				},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Resource:* %s", f.ResourceID)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Posture:* %s", f.Trigger.Posture)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Events:* %d", len(f.EventIDs))},
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{{
					"type": "mrkdwn",
					"text": fmt.Sprintf("prefect • automation • %s", f.OccurredAt.UTC().Format("2006-01-02 15:04 UTC")),
				}},
			},
		},
	}
}

func severityEmoji(sev incident.Severity) string {
	switch strings.ToLower(string(sev)) {
	case "critical", "major":
		return "\U0001f534" // red circle
	case "moderate":
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// truncate cuts s to at most limit bytes, never splitting a UTF-8 rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
