package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-service/internal/notification"
)

type chanQueue struct {
	jobs chan notification.Job
}

func newChanQueue() *chanQueue {
	return &chanQueue{jobs: make(chan notification.Job, 8)}
}

func (q *chanQueue) Enqueue(_ context.Context, job notification.Job) error {
	q.jobs <- job
	return nil
}

func (q *chanQueue) Dequeue(ctx context.Context, timeout time.Duration) (*notification.Job, error) {
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestProcessOne(t *testing.T) {
	ctx := context.Background()
	queue := newChanQueue()
	mailer := &recordingMailer{}
	w := NewNotificationWorker(queue, mailer, 10*time.Millisecond, nil)

	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, queue.Enqueue(ctx, notification.Job{To: "a@example.com", Subject: "s", Body: "b"}))
	processed, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []string{"a@example.com"}, mailer.sent)
}

func TestProcessOneLogsDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.ErrorLevel)
	queue := newChanQueue()
	w := NewNotificationWorker(queue, &recordingMailer{err: errors.New("smtp down")}, 10*time.Millisecond, zap.New(core))

	require.NoError(t, queue.Enqueue(ctx, notification.Job{EventType: "ticket_claimed", TicketID: "t1", To: "a@example.com"}))
	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	require.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	queue := newChanQueue()
	mailer := &recordingMailer{}
	w := NewNotificationWorker(queue, mailer, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, queue.Enqueue(ctx, notification.Job{To: "a@example.com"}))
	require.NoError(t, queue.Enqueue(ctx, notification.Job{To: "b@example.com"}))
	require.Eventually(t, func() bool { return mailer.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
