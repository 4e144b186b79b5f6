package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is one outbound notification.
type Message struct {
	Recipient string
	Text      string
	EventID   string
	EventType string
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Send(ctx context.Context, m Message) error
}

// LogDispatcher writes notifications to the log. Used when no gateway is
// configured.
type LogDispatcher struct{}

func (LogDispatcher) Send(ctx context.Context, m Message) error {
	log.Info().Str("recipient", m.Recipient).Str("event_id", m.EventID).Str("event_type", m.EventType).
		Str("text", m.Text).Msg("notify: message")
	return nil
}

// WebhookDispatcher posts {"target","message"} to an HTTP gateway such as a
// WhatsApp sender. The token, when set, goes in the Authorization header.
type WebhookDispatcher struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookDispatcher(url, token string, timeout time.Duration) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDispatcher{url: url, token: token, http: &http.Client{Timeout: timeout}}
}

type webhookBody struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

func (d *WebhookDispatcher) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(webhookBody{Target: m.Recipient, Message: m.Text})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
