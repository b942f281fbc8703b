package channel

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/pkg/config"
)

// EmailSender delivers the email-like channel payload: a subject/body pair
// with an optional call-to-action URL already rendered into the HTML.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// ResendSender sends transactional email through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewResendSender builds the sender. Returns nil when no API key is
// configured; the dispatcher treats a nil sender as a soft skip.
func NewResendSender(cfg config.EmailConfig, logger *zap.Logger) *ResendSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}
	return &ResendSender{
		client: resend.NewClient(cfg.APIKey),
		from:   from,
		logger: logger,
	}
}

// Send delivers a single email and returns the provider message id.
func (s *ResendSender) Send(ctx context.Context, to, subject, html string) (string, error) {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("resend send to %s: %w", to, err)
	}
	s.logger.Sugar().Debugw("email sent", "to", to, "provider_id", sent.Id)
	return sent.Id, nil
}
