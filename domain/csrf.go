package domain

import "time"

// CSRFToken is a one-time secret bound to a session. A session holds at
// most one live token; issuing a new one overwrites the previous record.
type CSRFToken struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}
