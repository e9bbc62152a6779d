package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notification"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// NotificationService turns domain events into emails. Jobs go to the queue
// when one is configured and are sent inline otherwise. Failures are logged
// and never reach the caller of the ticket operation.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	queue      notification.Queue
	mailer     notification.Mailer
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Users      repository.UserRepository
	// Queue may be nil, in which case Mailer sends synchronously.
	Queue  notification.Queue
	Mailer notification.Mailer
	Logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		users:      deps.Users,
		queue:      deps.Queue,
		mailer:     deps.Mailer,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketUpdated,
		events.EventTicketClaimed,
		events.EventTicketReassigned,
		events.EventTicketResolved,
		events.EventTicketCommented,
		events.EventTicketDeleted,
		events.EventUserRegistered,
	} {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	recipients, subject, body, err := n.compose(event)
	if err != nil {
		return err
	}

	if event.Type == events.EventTicketCreated {
		if recipients, err = n.supportAgents(ctx); err != nil {
			return err
		}
	}

	var errs []error
	seen := map[string]struct{}{}
	for _, userID := range recipients {
		if _, dup := seen[userID]; dup || userID == "" || userID == event.Actor.ID {
			continue
		}
		seen[userID] = struct{}{}
		to, err := n.emailFor(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve recipient %s: %w", userID, err))
			continue
		}
		if err := n.deliver(ctx, notification.Job{
			EventType:  string(event.Type),
			TicketID:   event.TicketID,
			To:         to,
			Subject:    subject,
			Body:       body,
			EnqueuedAt: time.Now().UTC(),
		}); err != nil {
			errs = append(errs, err)
		}
	}
	if event.Type == events.EventUserRegistered {
		if p, ok := event.Payload.(events.UserRegisteredPayload); ok {
			errs = append(errs, n.deliver(ctx, notification.Job{
				EventType:  string(event.Type),
				To:         p.Email,
				Subject:    subject,
				Body:       body,
				EnqueuedAt: time.Now().UTC(),
			}))
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) deliver(ctx context.Context, job notification.Job) error {
	if n.queue != nil {
		if err := n.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}
		n.logger.Debug("notification queued",
			zap.String("event_type", job.EventType),
			zap.String("ticket_id", job.TicketID))
		return nil
	}
	if n.mailer == nil {
		return nil
	}
	if err := n.mailer.Send(ctx, job.To, job.Subject, job.Body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (n *NotificationService) supportAgents(ctx context.Context) ([]string, error) {
	if n.users == nil {
		return nil, errors.New("user repository not configured")
	}
	agents, err := n.users.ListByRole(ctx, domain.RoleSupport)
	if err != nil {
		return nil, fmt.Errorf("list support agents: %w", err)
	}
	ids := make([]string, 0, len(agents))
	for _, agent := range agents {
		ids = append(ids, agent.ID)
	}
	return ids, nil
}

func (n *NotificationService) emailFor(ctx context.Context, userID string) (string, error) {
	if n.users == nil {
		return "", errors.New("user repository not configured")
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// compose picks recipients by user id and renders the message.
func (n *NotificationService) compose(event events.Event) ([]string, string, string, error) {
	switch p := event.Payload.(type) {
	case events.TicketPayload:
		title := html.EscapeString(p.Title)
		switch event.Type {
		case events.EventTicketCreated:
			return nil,
				"New ticket: " + p.Title,
				fmt.Sprintf("<p>A new <b>%s</b> priority ticket <b>%s</b> is waiting to be claimed.</p>", html.EscapeString(string(p.Priority)), title), nil
		case events.EventTicketUpdated:
			return []string{p.CreatedBy, deref(p.AssignedAgent)},
				"Ticket updated: " + p.Title,
				fmt.Sprintf("<p>Ticket <b>%s</b> was updated (%s).</p>", title, html.EscapeString(strings.Join(p.Fields, ", "))), nil
		case events.EventTicketClaimed:
			return []string{p.CreatedBy},
				"Your ticket is being worked on: " + p.Title,
				fmt.Sprintf("<p>An agent has picked up your ticket <b>%s</b>.</p>", title), nil
		case events.EventTicketResolved:
			return []string{p.CreatedBy},
				"Ticket resolved: " + p.Title,
				fmt.Sprintf("<p>Your ticket <b>%s</b> has been resolved and closed.</p>", title), nil
		case events.EventTicketDeleted:
			return []string{p.CreatedBy},
				"Ticket deleted: " + p.Title,
				fmt.Sprintf("<p>Your ticket <b>%s</b> has been deleted.</p>", title), nil
		}
	case events.TicketReassignedPayload:
		title := html.EscapeString(p.Title)
		return []string{deref(p.AssignedAgent), deref(p.PreviousAgent)},
			"Ticket reassigned: " + p.Title,
			fmt.Sprintf("<p>Ticket <b>%s</b> has been reassigned.</p>", title), nil
	case events.TicketCommentedPayload:
		title := html.EscapeString(p.Title)
		return []string{p.CreatedBy, deref(p.AssignedAgent)},
			"New comment on: " + p.Title,
			fmt.Sprintf("<p>New comment on <b>%s</b>:</p><blockquote>%s</blockquote>", title, html.EscapeString(p.BodyPreview)), nil
	case events.UserRegisteredPayload:
		return nil,
			"Welcome to the helpdesk",
			fmt.Sprintf("<p>Your %s account for %s is ready.</p>", html.EscapeString(string(p.Role)), html.EscapeString(p.Email)), nil
	}
	return nil, "", "", fmt.Errorf("unsupported payload %T for %s", event.Payload, event.Type)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
