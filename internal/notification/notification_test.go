package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

func TestNewMailerWithoutSMTPLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mailer, err := NewMailer(config.NotificationConfig{}, zap.New(core))
	require.NoError(t, err)
	require.IsType(t, &LogMailer{}, mailer)

	require.NoError(t, mailer.Send(context.Background(), "a@example.com", "Hello", "<p>body</p>"))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a@example.com", entries[0].ContextMap()["to"])
	assert.Equal(t, "Hello", entries[0].ContextMap()["subject"])
}

func TestNewMailerWithSMTP(t *testing.T) {
	mailer, err := NewMailer(config.NotificationConfig{
		EmailFrom:    "noreply@example.com",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     2525,
		SMTPUsername: "user",
		SMTPPassword: "secret",
	}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &SMTPMailer{}, mailer)
}

func TestJobEncoding(t *testing.T) {
	raw, err := encodeJob(Job{EventType: "ticket_claimed", TicketID: "t-1", To: "a@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)

	job, err := decodeJob(raw)
	require.NoError(t, err)
	assert.Equal(t, "ticket_claimed", job.EventType)
	assert.Equal(t, "a@example.com", job.To)
	assert.False(t, job.EnqueuedAt.IsZero())

	_, err = decodeJob(`{"subject":"no recipient"}`)
	require.Error(t, err)
	_, err = decodeJob("not json")
	require.Error(t, err)
}
