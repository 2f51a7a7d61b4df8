package domain

import "time"

// LoginAttemptRecord tracks failed authentication attempts from one source
// IP. The record is deleted on successful login or once the attempt window
// has elapsed without further failures.
type LoginAttemptRecord struct {
	SourceIP      string    `json:"source_ip"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	LockedUntil   time.Time `json:"locked_until,omitempty"` // zero when not locked
}

// Locked reports whether the source is under an active lockout.
func (r *LoginAttemptRecord) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}
