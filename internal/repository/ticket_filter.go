package repository

import (
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MaxListLimit caps a single page of tickets.
const MaxListLimit = 200

// SortField names a sortable ticket attribute.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByPriority  SortField = "priority"
	SortByStatus    SortField = "status"
	SortByTitle     SortField = "title"
	SortByCategory  SortField = "category"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TicketSort describes list ordering. A zero value keeps insertion order.
type TicketSort struct {
	Field SortField
	Order SortOrder
}

// ParseTicketSort normalizes caller supplied sort parameters. Unknown fields
// yield the zero sort; unknown orders fall back to ascending.
func ParseTicketSort(field, order string) TicketSort {
	var sort TicketSort
	switch SortField(strings.TrimSpace(field)) {
	case SortByCreatedAt, SortByUpdatedAt, SortByPriority, SortByStatus, SortByTitle, SortByCategory:
		sort.Field = SortField(strings.TrimSpace(field))
	default:
		return TicketSort{}
	}
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "desc", "descending", "-1":
		sort.Order = SortDesc
	default:
		sort.Order = SortAsc
	}
	return sort
}

// TicketFilter captures list parameters. Nil fields do not filter.
type TicketFilter struct {
	CreatedBy     *string
	AssignedAgent *string
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	Category      *domain.TicketCategory
	// Assigned filters on presence of an agent.
	Assigned *bool
	Sort     TicketSort
	// Limit of 0 returns everything.
	Limit  int
	Offset int
}

// TicketPredicate is the state a ticket must be in for a conditional write to apply.
type TicketPredicate struct {
	Status        *domain.TicketStatus
	Unassigned    bool
	AssignedAgent *string
}

// Matches evaluates the predicate against an in-memory ticket.
func (p TicketPredicate) Matches(t *domain.Ticket) bool {
	if p.Status != nil && t.Status != *p.Status {
		return false
	}
	if p.Unassigned && t.IsAssigned() {
		return false
	}
	if p.AssignedAgent != nil && !t.AssignedTo(*p.AssignedAgent) {
		return false
	}
	return true
}

// TicketChanges lists the fields a write sets. Nil fields are left untouched.
type TicketChanges struct {
	Title         *string
	Description   *string
	Priority      *domain.TicketPriority
	Category      *domain.TicketCategory
	Status        *domain.TicketStatus
	AssignedAgent *string
}

// IsEmpty reports whether no field would change.
func (c TicketChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Priority == nil &&
		c.Category == nil && c.Status == nil && c.AssignedAgent == nil
}

// Apply mutates t in place.
func (c TicketChanges) Apply(t *domain.Ticket) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.Category != nil {
		t.Category = *c.Category
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.AssignedAgent != nil {
		agent := *c.AssignedAgent
		t.AssignedAgent = &agent
	}
}

const ticketColumns = `t.id::text, t.title, t.description, t.status, t.priority, t.category,
       t.created_by::text, t.assigned_agent::text, t.created_at, t.updated_at,
       ARRAY(SELECT c.id::text FROM ticket_comments c WHERE c.ticket_id = t.id ORDER BY c.seq),
       ARRAY(SELECT l.id::text FROM ticket_audit_logs l WHERE l.ticket_id = t.id ORDER BY l.seq)`

var sortColumns = map[SortField]string{
	SortByCreatedAt: "t.created_at",
	SortByUpdatedAt: "t.updated_at",
	SortByTitle:     "t.title",
	SortByCategory:  "t.category",
	SortByPriority:  "CASE t.priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 END",
	SortByStatus:    "CASE t.status WHEN 'open' THEN 1 WHEN 'inProgress' THEN 2 WHEN 'closed' THEN 3 END",
}

// buildListQuery composes the SELECT for ListWithFilter.
func buildListQuery(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if filter.AssignedAgent != nil {
		args = append(args, *filter.AssignedAgent)
		clauses = append(clauses, fmt.Sprintf("t.assigned_agent=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("t.priority=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("t.category=$%d", len(args)))
	}
	if filter.Assigned != nil {
		if *filter.Assigned {
			clauses = append(clauses, "t.assigned_agent IS NOT NULL")
		} else {
			clauses = append(clauses, "t.assigned_agent IS NULL")
		}
	}

	order := "t.seq ASC"
	if col, ok := sortColumns[filter.Sort.Field]; ok {
		dir := "ASC"
		if filter.Sort.Order == SortDesc {
			dir = "DESC"
		}
		order = fmt.Sprintf("%s %s, t.seq ASC", col, dir)
	}

	query := fmt.Sprintf("SELECT %s FROM tickets t WHERE %s ORDER BY %s",
		ticketColumns, strings.Join(clauses, " AND "), order)

	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > MaxListLimit {
			limit = MaxListLimit
		}
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return query, args
}

// predicateClauses appends WHERE fragments for pred, numbering placeholders after args.
func predicateClauses(pred TicketPredicate, args []any) ([]string, []any) {
	var clauses []string
	if pred.Status != nil {
		args = append(args, string(*pred.Status))
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if pred.Unassigned {
		clauses = append(clauses, "t.assigned_agent IS NULL")
	}
	if pred.AssignedAgent != nil {
		args = append(args, *pred.AssignedAgent)
		clauses = append(clauses, fmt.Sprintf("t.assigned_agent=$%d", len(args)))
	}
	return clauses, args
}

// buildConditionalUpdate composes a single UPDATE ... WHERE <predicate> RETURNING statement.
func buildConditionalUpdate(id string, pred TicketPredicate, ch TicketChanges) (string, []any) {
	args := []any{}
	sets := []string{}

	set := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if ch.Title != nil {
		set("title", *ch.Title)
	}
	if ch.Description != nil {
		set("description", *ch.Description)
	}
	if ch.Priority != nil {
		set("priority", string(*ch.Priority))
	}
	if ch.Category != nil {
		set("category", string(*ch.Category))
	}
	if ch.Status != nil {
		set("status", string(*ch.Status))
	}
	if ch.AssignedAgent != nil {
		set("assigned_agent", *ch.AssignedAgent)
	}
	sets = append(sets, "updated_at=NOW()")

	args = append(args, id)
	where := []string{fmt.Sprintf("t.id=$%d", len(args))}
	var extra []string
	extra, args = predicateClauses(pred, args)
	where = append(where, extra...)

	query := fmt.Sprintf("UPDATE tickets t SET %s WHERE %s RETURNING %s",
		strings.Join(sets, ", "), strings.Join(where, " AND "), ticketColumns)
	return query, args
}

// buildConditionalDelete composes DELETE ... WHERE <predicate> RETURNING.
func buildConditionalDelete(id string, pred TicketPredicate) (string, []any) {
	args := []any{id}
	where := []string{"t.id=$1"}
	var extra []string
	extra, args = predicateClauses(pred, args)
	where = append(where, extra...)
	query := fmt.Sprintf("DELETE FROM tickets t WHERE %s RETURNING %s", strings.Join(where, " AND "), ticketColumns)
	return query, args
}
