package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketUpdated    EventType = "ticket_updated"
	EventTicketClaimed    EventType = "ticket_claimed"
	EventTicketReassigned EventType = "ticket_reassigned"
	EventTicketResolved   EventType = "ticket_resolved"
	EventTicketCommented  EventType = "ticket_commented"
	EventTicketDeleted    EventType = "ticket_deleted"
	EventUserRegistered   EventType = "user_registered"
)

// Actor identifies who caused an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// Event represents a domain event emitted after a committed change.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketPayload carries the ticket state after the change. Used by created,
// updated, claimed, resolved and deleted events.
type TicketPayload struct {
	Title         string                `json:"title"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	CreatedBy     string                `json:"created_by"`
	AssignedAgent *string               `json:"assigned_agent,omitempty"`
	// Fields names the attributes an update touched.
	Fields []string `json:"fields,omitempty"`
}

// TicketReassignedPayload payload.
type TicketReassignedPayload struct {
	TicketPayload
	PreviousAgent *string `json:"previous_agent,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	TicketPayload
	CommentID   string `json:"comment_id"`
	BodyPreview string `json:"body_preview"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// NewTicketPayload snapshots t for an event.
func NewTicketPayload(t *domain.Ticket) TicketPayload {
	p := TicketPayload{
		Title:     t.Title,
		Status:    t.Status,
		Priority:  t.Priority,
		CreatedBy: t.CreatedBy,
	}
	if t.AssignedAgent != nil {
		agent := *t.AssignedAgent
		p.AssignedAgent = &agent
	}
	return p
}
