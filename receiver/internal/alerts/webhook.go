package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/obsidianstack/phimon/receiver/internal/config"
)

// fact is one labelled peer attribute shown in chat notifications.
type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// facts lists the peer status an alert carries, in display order.
func facts(a *Alert) []fact {
	return []fact{
		{Name: "Peer", Value: a.Peer},
		{Name: "Peer state", Value: a.PeerState},
		{Name: "Phi", Value: strconv.FormatFloat(a.Phi, 'f', 2, 64)},
		{Name: "Threshold", Value: strconv.FormatFloat(a.Threshold, 'f', 2, 64)},
	}
}

// headline is the one-line summary used as notification text.
func headline(a *Alert) string {
	return fmt.Sprintf("%s %s: %s is %s at phi %.2f (rung %.2f)",
		severityLabel(a.Severity), a.State, a.Peer, a.PeerState, a.Phi, a.Threshold)
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	e.mu.Lock()
	webhooks := append([]config.WebhookConfig(nil), e.webhooks...)
	e.mu.Unlock()

	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		body, err := payload(wh.Type, a)
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"peer", a.Peer,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// payload renders a for one webhook type.
func payload(kind string, a *Alert) ([]byte, error) {
	switch kind {
	case "slack":
		fields := make([]map[string]string, 0, 4)
		for _, f := range facts(a) {
			fields = append(fields, map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("*%s*\n%s", f.Name, f.Value)})
		}
		return json.Marshal(map[string]interface{}{
			"text": headline(a),
			"blocks": []map[string]interface{}{
				{"type": "section", "text": map[string]string{"type": "mrkdwn", "text": "*" + a.RuleName + "* " + a.Message}},
				{"type": "section", "fields": fields},
			},
		})
	case "teams":
		return json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a.Severity),
			"summary":    headline(a),
			"title":      fmt.Sprintf("phimon alert %s: %s", a.State, a.RuleName),
			"text":       a.Message,
			"sections":   []map[string]interface{}{{"facts": facts(a)}},
		})
	case "http":
		return json.Marshal(map[string]interface{}{
			"event": "alert." + a.State,
			"alert": a,
		})
	default:
		return nil, fmt.Errorf("unknown webhook type %q", kind)
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
