package domain

import "time"

// Comment is an immutable note attached to a ticket thread.
type Comment struct {
	ID        string
	TicketID  string
	Text      string
	Author    string
	CreatedAt time.Time
}
