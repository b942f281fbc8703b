package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/pkg/config"
)

// PushSender delivers the push-like channel payload: a single flattened text
// message per recipient.
type PushSender interface {
	Send(ctx context.Context, userID, message string) (string, error)
}

// WebhookPushSender forwards push messages to a gateway webhook that owns the
// actual device delivery.
type WebhookPushSender struct {
	url    string
	token  string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookPushSender builds the sender. Returns nil when no webhook URL is
// configured; the dispatcher treats a nil sender as a soft skip.
func NewWebhookPushSender(cfg config.PushConfig, logger *zap.Logger) *WebhookPushSender {
	if cfg.WebhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPushSender{
		url:    cfg.WebhookURL,
		token:  cfg.AuthToken,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type pushPayload struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// Send posts the message to the gateway and returns its status.
func (s *WebhookPushSender) Send(ctx context.Context, userID, message string) (string, error) {
	body, err := json.Marshal(pushPayload{UserID: userID, Message: message})
	if err != nil {
		return "", fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push delivery to %s: %w", userID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return resp.Status, fmt.Errorf("push gateway returned %s for %s", resp.Status, userID)
	}
	s.logger.Sugar().Debugw("push sent", "user_id", userID, "status", resp.Status)
	return resp.Status, nil
}
