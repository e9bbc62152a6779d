package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,min=2,max=32"`
	Description string                `json:"description" validate:"required,min=10,max=1024"`
	Priority    domain.TicketPriority `json:"priority" validate:"required,ticket_priority"`
	Category    domain.TicketCategory `json:"category" validate:"required,ticket_category"`
}

// UpdateTicketRequest is a partial update; omitted fields stay unchanged.
type UpdateTicketRequest struct {
	Title       *string                `json:"title" validate:"omitnil,min=2,max=32"`
	Description *string                `json:"description" validate:"omitnil,min=10,max=1024"`
	Priority    *domain.TicketPriority `json:"priority" validate:"omitnil,ticket_priority"`
	Category    *domain.TicketCategory `json:"category" validate:"omitnil,ticket_category"`
	// Status is refused by the service; it is parsed so the refusal is explicit.
	Status *domain.TicketStatus `json:"status"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required,min=2,max=64"`
}

// ReassignTicketRequest payload.
type ReassignTicketRequest struct {
	AgentID string `json:"agentId" validate:"required,uuid"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	Category      domain.TicketCategory `json:"category"`
	CreatedBy     string                `json:"createdBy"`
	AssignedAgent *string               `json:"assignedAgent"`
	CommentIDs    []string              `json:"commentIds"`
	HistoryIDs    []string              `json:"historyIds"`
	Comments      []CommentResponse     `json:"comments,omitempty"`
	CreatedByUser *UserResponse         `json:"createdByUser,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditLogResponse represents one history record.
type AuditLogResponse struct {
	ID           string            `json:"id"`
	TicketID     string            `json:"ticketId"`
	UserID       string            `json:"userId"`
	UpdateType   domain.UpdateType `json:"updateType"`
	UpdateFields map[string]any    `json:"updateFields"`
	Timestamp    time.Time         `json:"timestamp"`
}

// NewTicketResponse maps a ticket for the wire.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      t.Priority,
		Category:      t.Category,
		CreatedBy:     t.CreatedBy,
		AssignedAgent: t.AssignedAgent,
		CommentIDs:    nonNil(t.CommentIDs),
		HistoryIDs:    nonNil(t.HistoryIDs),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if len(t.Comments) > 0 {
		resp.Comments = NewCommentResponses(t.Comments)
	}
	if t.CreatedByUser != nil {
		user := NewUserResponse(t.CreatedByUser)
		resp.CreatedByUser = &user
	}
	return resp
}

// NewTicketResponses maps a ticket list.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewCommentResponses maps a comment thread.
func NewCommentResponses(comments []domain.Comment) []CommentResponse {
	items := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		items = append(items, CommentResponse{
			ID:        c.ID,
			TicketID:  c.TicketID,
			Text:      c.Text,
			Author:    c.Author,
			CreatedAt: c.CreatedAt,
		})
	}
	return items
}

// NewAuditLogResponses maps a ticket history.
func NewAuditLogResponses(logs []domain.AuditLog) []AuditLogResponse {
	items := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		fields := l.UpdateFields
		if fields == nil {
			fields = map[string]any{}
		}
		items = append(items, AuditLogResponse{
			ID:           l.ID,
			TicketID:     l.TicketID,
			UserID:       l.UserID,
			UpdateType:   l.UpdateType,
			UpdateFields: fields,
			Timestamp:    l.Timestamp,
		})
	}
	return items
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
