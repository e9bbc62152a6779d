// Package notification delivers outbound email, either directly or through a
// Redis backed job queue drained by the worker.
package notification

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends HTML mail through an SMTP relay.
type SMTPMailer struct {
	from   string
	client *mail.Client
}

// NewSMTPMailer builds a mailer from configuration.
func NewSMTPMailer(cfg config.NotificationConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{from: cfg.EmailFrom, client: client}, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return m.client.DialAndSendWithContext(ctx, msg)
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a mailer for environments without SMTP.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, to, subject, _ string) error {
	m.logger.Info("email suppressed; smtp not configured",
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}

// NewMailer picks the SMTP mailer when configured and the log mailer otherwise.
func NewMailer(cfg config.NotificationConfig, logger *zap.Logger) (Mailer, error) {
	if !cfg.SMTPEnabled() {
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}
