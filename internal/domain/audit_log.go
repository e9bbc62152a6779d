package domain

import "time"

// UpdateType captures which lifecycle operation produced an audit record.
type UpdateType string

const (
	UpdateTypeNewTicket      UpdateType = "newTicket"
	UpdateTypeUpdateTicket   UpdateType = "updateTicket"
	UpdateTypeAssignTicket   UpdateType = "assignTicket"
	UpdateTypeReassignTicket UpdateType = "reassignTicket"
	UpdateTypeCloseTicket    UpdateType = "closeTicket"
	UpdateTypeComment        UpdateType = "comment"
)

// AuditLog is an append-only record of one mutation applied to a ticket.
// UpdateFields holds exactly the fields that operation changed.
type AuditLog struct {
	ID           string
	TicketID     string
	UserID       string
	UpdateType   UpdateType
	UpdateFields map[string]any
	Timestamp    time.Time
}
