// Package notify forwards host notifications to a chat webhook.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Message is a notification addressed to a user.
type Message struct {
	Recipient string
	HostName  string
	Title     string
	Text      string
}

// Notifier delivers messages outside the application.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// Webhook posts messages as adaptive cards to an incoming webhook such as
// Microsoft Teams.
type Webhook struct {
	url    string
	client *resty.Client
}

// NewWebhook creates a notifier for url. A nil httpClient uses a default
// client with a 10 second timeout.
func NewWebhook(url string, httpClient *http.Client) *Webhook {
	var c *resty.Client
	if httpClient != nil {
		c = resty.NewWithClient(httpClient)
	} else {
		c = resty.New().SetTimeout(10 * time.Second)
	}
	return &Webhook{url: url, client: c}
}

// Notify posts msg to the webhook.
func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(card(msg)).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %s", resp.Status())
	}
	return nil
}

func card(msg Message) map[string]any {
	facts := []map[string]string{{"title": "Recipient:", "value": msg.Recipient}}
	if msg.HostName != "" {
		facts = append(facts, map[string]string{"title": "Host:", "value": msg.HostName})
	}

	content := map[string]any{
		"type":    "AdaptiveCard",
		"version": "1.4",
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"body": []map[string]any{
			{
				"type":   "TextBlock",
				"text":   msg.Title,
				"weight": "Bolder",
				"size":   "Medium",
				"wrap":   true,
			},
			{
				"type": "TextBlock",
				"text": msg.Text,
				"wrap": true,
			},
			{
				"type":    "FactSet",
				"facts":   facts,
				"spacing": "Small",
			},
		},
	}

	return map[string]any{
		"attachments": []map[string]any{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content":     content,
			},
		},
	}
}
