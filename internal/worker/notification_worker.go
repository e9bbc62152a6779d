package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/notification"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// NotificationWorker drains queued notification jobs and mails them.
type NotificationWorker struct {
	queue   notification.Queue
	mailer  notification.Mailer
	logger  *zap.Logger
	block   time.Duration
	backoff time.Duration
}

// NewNotificationWorker builds a worker. block bounds each dequeue wait.
func NewNotificationWorker(queue notification.Queue, mailer notification.Mailer, block time.Duration, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:   queue,
		mailer:  mailer,
		logger:  logger,
		block:   block,
		backoff: time.Second,
	}
}

// Run processes jobs until ctx is cancelled. Send failures are logged and the
// job is dropped.
func (w *NotificationWorker) Run(ctx context.Context) {
	if w.queue == nil || w.mailer == nil {
		return
	}
	w.logger.Info("notification worker started", zap.Duration("block", w.block))
	defer w.logger.Info("notification worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Warn("dequeue notification failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
		}
	}
}

// ProcessOne waits for a single job and sends it. It reports whether a job
// was taken off the queue.
func (w *NotificationWorker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx, w.block)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if err := w.mailer.Send(ctx, job.To, job.Subject, job.Body); err != nil {
		w.logger.Error("notification delivery failed",
			zap.String("event_type", job.EventType),
			zap.String("ticket_id", job.TicketID),
			zap.Error(err))
		return true, nil
	}
	w.logger.Debug("notification delivered",
		zap.String("event_type", job.EventType),
		zap.String("ticket_id", job.TicketID),
		zap.Duration("queued_for", time.Since(job.EnqueuedAt)))
	return true, nil
}
