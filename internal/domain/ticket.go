package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "inProgress"
	TicketStatusClosed     TicketStatus = "closed"
)

// IsValid reports whether s is a known status.
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// IsValid reports whether p is a known priority.
func (p TicketPriority) IsValid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// TicketCategory is one of the fixed problem categories a ticket is filed under.
type TicketCategory string

const (
	CategoryLoginAuthentication TicketCategory = "Login/Authentication Issue"
	CategoryUIUXFeedback        TicketCategory = "UI/UX Feedback"
	CategoryPerformance         TicketCategory = "Performance Problem"
	CategoryBrokenLinks         TicketCategory = "Broken Links"
	CategoryErrorMessages       TicketCategory = "Error Messages"
	CategoryCompatibility       TicketCategory = "Compatibility Issue"
	CategoryMissingData         TicketCategory = "Missing or Incorrect Data"
	CategoryFeatureMalfunction  TicketCategory = "Feature Malfunction"
	CategorySpellingGrammar     TicketCategory = "Spelling or Grammar Mistakes"
	CategoryGeneralInquiry      TicketCategory = "General Inquiry"
)

// TicketCategories lists every accepted category in display order.
var TicketCategories = []TicketCategory{
	CategoryLoginAuthentication,
	CategoryUIUXFeedback,
	CategoryPerformance,
	CategoryBrokenLinks,
	CategoryErrorMessages,
	CategoryCompatibility,
	CategoryMissingData,
	CategoryFeatureMalfunction,
	CategorySpellingGrammar,
	CategoryGeneralInquiry,
}

// IsValid reports whether c is one of TicketCategories.
func (c TicketCategory) IsValid() bool {
	for _, known := range TicketCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Ticket is the aggregate root for support requests. Comments and audit
// records belong to exactly one ticket and are referenced in insertion order.
type Ticket struct {
	ID            string
	Title         string
	Description   string
	Status        TicketStatus
	Priority      TicketPriority
	Category      TicketCategory
	CreatedBy     string
	AssignedAgent *string
	CommentIDs    []string
	HistoryIDs    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Populated on read paths that resolve references.
	Comments      []Comment
	CreatedByUser *User
}

// IsAssigned reports whether an agent currently owns the ticket.
func (t *Ticket) IsAssigned() bool {
	return t.AssignedAgent != nil && *t.AssignedAgent != ""
}

// AssignedTo reports whether the ticket is assigned to userID.
func (t *Ticket) AssignedTo(userID string) bool {
	return t.IsAssigned() && *t.AssignedAgent == userID
}

// Clone returns a deep copy safe to hand out of a store.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.AssignedAgent != nil {
		agent := *t.AssignedAgent
		c.AssignedAgent = &agent
	}
	c.CommentIDs = append([]string(nil), t.CommentIDs...)
	c.HistoryIDs = append([]string(nil), t.HistoryIDs...)
	c.Comments = append([]Comment(nil), t.Comments...)
	if t.CreatedByUser != nil {
		u := *t.CreatedByUser
		c.CreatedByUser = &u
	}
	return &c
}
