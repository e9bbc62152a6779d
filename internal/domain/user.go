package domain

import "time"

// Role enumerates the access levels a caller can hold.
type Role string

const (
	RoleUser    Role = "user"
	RoleSupport Role = "support"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleSupport, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may work tickets as an agent.
func (r Role) IsStaff() bool {
	return r == RoleSupport || r == RoleAdmin
}

// User is an account that can file or work tickets.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the authenticated identity performing a ticket operation.
type Actor struct {
	ID    string
	Role  Role
	Email string
}

// ActorFromUser builds the actor for an authenticated account.
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role, Email: u.Email}
}
