package service

import (
	"slices"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string                `json:"title" validate:"required,min=2,max=32"`
	Description string                `json:"description" validate:"required,min=10,max=1024"`
	Priority    domain.TicketPriority `json:"priority" validate:"required,ticket_priority"`
	Category    domain.TicketCategory `json:"category" validate:"required,ticket_category"`
}

func (in TicketCreateInput) auditFields() map[string]any {
	return map[string]any{
		"title":       in.Title,
		"description": in.Description,
		"priority":    string(in.Priority),
		"category":    string(in.Category),
	}
}

// TicketUpdateInput is a partial update; nil fields are left untouched.
// Status is accepted so it can be refused explicitly.
type TicketUpdateInput struct {
	Title       *string                `json:"title,omitempty" validate:"omitnil,min=2,max=32"`
	Description *string                `json:"description,omitempty" validate:"omitnil,min=10,max=1024"`
	Priority    *domain.TicketPriority `json:"priority,omitempty" validate:"omitnil,ticket_priority"`
	Category    *domain.TicketCategory `json:"category,omitempty" validate:"omitnil,ticket_category"`
	Status      *domain.TicketStatus   `json:"status,omitempty"`
}

func (in TicketUpdateInput) changes() repository.TicketChanges {
	return repository.TicketChanges{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Category:    in.Category,
	}
}

// auditFields holds exactly the supplied fields.
func (in TicketUpdateInput) auditFields() map[string]any {
	fields := map[string]any{}
	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Priority != nil {
		fields["priority"] = string(*in.Priority)
	}
	if in.Category != nil {
		fields["category"] = string(*in.Category)
	}
	return fields
}

// TicketListFilter narrows List results. Nil fields do not filter.
type TicketListFilter struct {
	Status   *domain.TicketStatus
	Priority *domain.TicketPriority
	Category *domain.TicketCategory
	// Assigned is "true" for tickets with an agent, "false" for tickets
	// without one. Any other value is ignored.
	Assigned string
	Limit    int
	Offset   int
}

func (f TicketListFilter) toRepository(sort repository.TicketSort) repository.TicketFilter {
	out := repository.TicketFilter{
		Status:   f.Status,
		Priority: f.Priority,
		Category: f.Category,
		Sort:     sort,
		Limit:    f.Limit,
		Offset:   f.Offset,
	}
	switch strings.ToLower(strings.TrimSpace(f.Assigned)) {
	case "true":
		assigned := true
		out.Assigned = &assigned
	case "false":
		assigned := false
		out.Assigned = &assigned
	}
	return out
}

func (f TicketListFilter) validate() error {
	details := map[string]any{}
	if f.Status != nil && !f.Status.IsValid() {
		details["status"] = "ticket_status"
	}
	if f.Priority != nil && !f.Priority.IsValid() {
		details["priority"] = "ticket_priority"
	}
	if f.Category != nil && !f.Category.IsValid() {
		details["category"] = "ticket_category"
	}
	if f.Limit < 0 {
		details["limit"] = "min=0"
	}
	if f.Offset < 0 {
		details["offset"] = "min=0"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid filter", details)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
