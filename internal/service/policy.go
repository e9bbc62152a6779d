package service

import (
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Operation names one lifecycle engine entry point.
type Operation string

const (
	OpList         Operation = "list"
	OpCreate       Operation = "create"
	OpGet          Operation = "get"
	OpUpdate       Operation = "update"
	OpClaim        Operation = "claim"
	OpReassign     Operation = "reassign"
	OpResolve      Operation = "resolve"
	OpAddComment   Operation = "addComment"
	OpListComments Operation = "listComments"
	OpDelete       Operation = "delete"
	OpListHistory  Operation = "listHistory"
	OpListAssigned Operation = "listAssigned"
)

// Ownership is the relation a caller must have to the ticket.
type Ownership int

const (
	// OwnershipNone admits any ticket.
	OwnershipNone Ownership = iota
	// OwnershipCreator requires the caller to have filed the ticket.
	OwnershipCreator
	// OwnershipAssignee requires the caller to be the assigned agent.
	OwnershipAssignee
)

func (o Ownership) String() string {
	switch o {
	case OwnershipCreator:
		return "creator"
	case OwnershipAssignee:
		return "assignee"
	default:
		return "none"
	}
}

// Rule is the permission granted to one role for one operation.
type Rule struct {
	Ownership Ownership
}

var (
	anyTicket  = Rule{Ownership: OwnershipNone}
	ownTicket  = Rule{Ownership: OwnershipCreator}
	assignedTo = Rule{Ownership: OwnershipAssignee}
)

// policy lists who may run each operation. A role missing from an
// operation's row is refused outright.
var policy = map[Operation]map[domain.Role]Rule{
	OpList:   {domain.RoleUser: ownTicket, domain.RoleSupport: anyTicket, domain.RoleAdmin: anyTicket},
	OpCreate: {domain.RoleUser: anyTicket, domain.RoleSupport: anyTicket, domain.RoleAdmin: anyTicket},
	OpGet:    {domain.RoleUser: ownTicket, domain.RoleSupport: anyTicket, domain.RoleAdmin: anyTicket},
	OpUpdate: {domain.RoleUser: ownTicket, domain.RoleSupport: anyTicket, domain.RoleAdmin: anyTicket},

	OpClaim:    {domain.RoleSupport: anyTicket, domain.RoleAdmin: anyTicket},
	OpReassign: {domain.RoleSupport: assignedTo, domain.RoleAdmin: anyTicket},
	OpResolve:  {domain.RoleSupport: assignedTo, domain.RoleAdmin: anyTicket},
	OpDelete:   {domain.RoleSupport: assignedTo, domain.RoleAdmin: anyTicket},

	OpAddComment:   {domain.RoleUser: ownTicket, domain.RoleSupport: assignedTo, domain.RoleAdmin: anyTicket},
	OpListComments: {domain.RoleUser: ownTicket, domain.RoleSupport: assignedTo, domain.RoleAdmin: anyTicket},
	OpListHistory:  {domain.RoleUser: ownTicket, domain.RoleSupport: assignedTo, domain.RoleAdmin: anyTicket},

	OpListAssigned: {domain.RoleSupport: anyTicket, domain.RoleAdmin: anyTicket},
}

// Authorize returns the rule for actor on op, or Forbidden.
func Authorize(op Operation, actor domain.Actor) (Rule, error) {
	if actor.ID == "" {
		return Rule{}, apperrors.NewUnauthorized("authentication required")
	}
	rule, ok := policy[op][actor.Role]
	if !ok {
		return Rule{}, apperrors.NewForbidden("role " + string(actor.Role) + " may not " + string(op))
	}
	return rule, nil
}

// Permits reports whether actor satisfies the ownership rule for t.
func (r Rule) Permits(actor domain.Actor, t *domain.Ticket) bool {
	switch r.Ownership {
	case OwnershipCreator:
		return t.CreatedBy == actor.ID
	case OwnershipAssignee:
		return t.AssignedTo(actor.ID)
	default:
		return true
	}
}

// assigneeFilter is the predicate value enforcing the rule inside a
// conditional write, or nil when any assignee is acceptable.
func (r Rule) assigneeFilter(actor domain.Actor) *string {
	if r.Ownership != OwnershipAssignee {
		return nil
	}
	id := actor.ID
	return &id
}
