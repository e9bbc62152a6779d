package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notification"
)

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.To)
	}
	return out
}

type fakeQueue struct {
	jobs []notification.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job notification.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context, time.Duration) (*notification.Job, error) {
	return nil, nil
}

func wireNotifications(s *Setup, queue notification.Queue, mailer notification.Mailer) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Users:      s.Store.Repos().Users,
		Queue:      queue,
		Mailer:     mailer,
	}).RegisterHandlers()
	s.Service.dispatcher = dispatcher
}

func TestNotificationsSentInlineWithoutQueue(t *testing.T) {
	ctx := context.Background()
	s := NewSetup(t, defaultConfig())
	mailer := &fakeMailer{}
	wireNotifications(s, nil, mailer)

	ticket := s.CreateTicket(t, s.User1)
	assert.ElementsMatch(t, []string{"s1@example.com", "s2@example.com"}, mailer.recipients())

	mailer.sent = nil
	_, err := s.Service.Claim(ctx, s.Support1, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com"}, mailer.recipients())
	assert.Contains(t, mailer.sent[0].Subject, "hello")

	mailer.sent = nil
	_, err = s.Service.AddComment(ctx, s.User1, ticket.ID, "<b>any news?</b>")
	require.NoError(t, err)
	require.Equal(t, []string{"s1@example.com"}, mailer.recipients(), "the author is not notified")
	assert.Contains(t, mailer.sent[0].Body, "&lt;b&gt;any news?&lt;/b&gt;")

	mailer.sent = nil
	_, err = s.Service.Reassign(ctx, s.Admin, ticket.ID, s.Support2.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1@example.com", "s2@example.com"}, mailer.recipients())
}

func TestNotificationsQueuedWhenQueueConfigured(t *testing.T) {
	ctx := context.Background()
	s := NewSetup(t, defaultConfig())
	queue := &fakeQueue{}
	mailer := &fakeMailer{}
	wireNotifications(s, queue, mailer)

	ticket := s.ClaimedTicket(t)
	_, err := s.Service.Resolve(ctx, s.Support1, ticket.ID)
	require.NoError(t, err)

	require.Empty(t, mailer.sent)
	require.NotEmpty(t, queue.jobs)
	last := queue.jobs[len(queue.jobs)-1]
	assert.Equal(t, string(events.EventTicketResolved), last.EventType)
	assert.Equal(t, ticket.ID, last.TicketID)
	assert.Equal(t, "u1@example.com", last.To)
}

func TestMailerFailureDoesNotFailTicketOperation(t *testing.T) {
	ctx := context.Background()
	s := NewSetup(t, defaultConfig())
	wireNotifications(s, nil, &fakeMailer{err: errors.New("smtp down")})

	ticket := s.CreateTicket(t, s.User1)
	claimed, err := s.Service.Claim(ctx, s.Support1, ticket.ID)
	require.NoError(t, err)
	require.True(t, claimed.AssignedTo(s.Support1.ID))
}
