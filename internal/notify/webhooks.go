package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tapline/internal/config"
	"tapline/internal/events"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhooks posts every matching event to the configured endpoints.
type Webhooks struct {
	Hooks  []config.WebhookConfig
	Client *http.Client
	Logger *slog.Logger
}

func NewWebhooks(hooks []config.WebhookConfig, logger *slog.Logger) *Webhooks {
	return &Webhooks{
		Hooks:  hooks,
		Client: &http.Client{Timeout: defaultWebhookTimeout},
		Logger: logger,
	}
}

func (w *Webhooks) Register(bus *events.Bus) {
	for i, hook := range w.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		hook := hook
		bus.Subscribe(fmt.Sprintf("webhook.%d", i), func(ctx context.Context, e events.Event) error {
			return w.post(ctx, hook, e)
		}, hook.Events...)
	}
}

type webhookEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	InviteID  string         `json:"invite_id,omitempty"`
	TS        string         `json:"ts"`
	Phase     string         `json:"phase,omitempty"`
	JobFamily string         `json:"job_family,omitempty"`
	Payload   map[string]any `json:"payload"`
}

func (w *Webhooks) post(ctx context.Context, hook config.WebhookConfig, e events.Event) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body := webhookEvent{
		ID:        e.ID,
		Type:      e.Type,
		SessionID: e.SessionID,
		InviteID:  e.InviteID,
		TS:        e.At.UTC().Format(time.RFC3339Nano),
		Phase:     string(e.Session.Phase),
		JobFamily: e.Session.JobFamily,
		Payload:   payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tapline-Event", e.Type)
	req.Header.Set("X-Tapline-Delivery", e.ID)
	req.Header.Set("X-Tapline-Session", e.SessionID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Tapline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", hook.URL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s: status %d: %s", hook.URL, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	loggerOr(w.Logger).Debug("webhook delivered", "url", hook.URL, "type", e.Type)
	return nil
}
