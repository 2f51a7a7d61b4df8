package domain

import "time"

// Role determines which session profile applies to a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
	RoleUser  Role = "user"
)

// Session represents one authenticated browser context. The ID doubles as
// the cookie value, so it must be unguessable and never reused.
type Session struct {
	ID             string    `json:"id" bson:"_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	Email          string    `json:"email" bson:"email"`
	Role           Role      `json:"role" bson:"role"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at" bson:"last_activity_at"`
	BoundIP        string    `json:"bound_ip" bson:"bound_ip"`
	BoundUserAgent string    `json:"bound_user_agent" bson:"bound_user_agent"`
}

// Age returns the absolute age of the session at the given instant.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Idle returns how long the session has been inactive at the given instant.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
