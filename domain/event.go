package domain

import "time"

// EventType is the closed set of security decisions the core records.
type EventType string

const (
	EventLoginSuccess          EventType = "login_success"
	EventLoginFailure          EventType = "login_failure"
	EventLogout                EventType = "logout"
	EventSessionCreated        EventType = "session_created"
	EventSessionExpired        EventType = "session_expired"
	EventSessionHijackAttempt  EventType = "session_hijack_attempt"
	EventCSRFTokenInvalid      EventType = "csrf_token_invalid"
	EventRateLimitExceeded     EventType = "rate_limit_exceeded"
	EventUnauthorizedAccess    EventType = "unauthorized_access"
	EventUnauthorizedAPIAccess EventType = "unauthorized_api_access"
	EventInvalidSignature      EventType = "invalid_signature"
	EventAPIKeyInvalid         EventType = "api_key_invalid"
	EventIPBlocked             EventType = "ip_blocked"
	EventSQLInjectionAttempt   EventType = "sql_injection_attempt"
	EventXSSAttempt            EventType = "xss_attempt"
	EventSuspiciousActivity    EventType = "suspicious_activity"
)

// Severity classifies how alarming an event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// baseSeverity is the static type-to-severity table. Some types escalate
// contextually on top of this, see seclog.
var baseSeverity = map[EventType]Severity{
	EventLoginSuccess:          SeverityInfo,
	EventLoginFailure:          SeverityMedium,
	EventLogout:                SeverityInfo,
	EventSessionCreated:        SeverityInfo,
	EventSessionExpired:        SeverityInfo,
	EventSessionHijackAttempt:  SeverityHigh,
	EventCSRFTokenInvalid:      SeverityMedium,
	EventRateLimitExceeded:     SeverityMedium,
	EventUnauthorizedAccess:    SeverityMedium,
	EventUnauthorizedAPIAccess: SeverityHigh,
	EventInvalidSignature:      SeverityHigh,
	EventAPIKeyInvalid:         SeverityHigh,
	EventIPBlocked:             SeverityHigh,
	EventSQLInjectionAttempt:   SeverityCritical,
	EventXSSAttempt:            SeverityCritical,
	EventSuspiciousActivity:    SeverityCritical,
}

// BaseSeverity returns the static severity for an event type. Unknown
// types default to medium rather than disappearing into info noise.
func BaseSeverity(t EventType) Severity {
	if s, ok := baseSeverity[t]; ok {
		return s
	}
	return SeverityMedium
}

// SeverityRank orders severities for comparisons; higher is worse.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// SecurityEvent is the immutable record of one security decision. Only the
// Resolved and ResolutionNotes fields may change after creation, via an
// explicit operator action.
type SecurityEvent struct {
	ID              string            `json:"id" bson:"_id"`
	Timestamp       time.Time         `json:"timestamp" bson:"timestamp"`
	Type            EventType         `json:"type" bson:"type"`
	Severity        Severity          `json:"severity" bson:"severity"`
	UserID          string            `json:"user_id,omitempty" bson:"user_id,omitempty"`
	SourceIP        string            `json:"source_ip" bson:"source_ip"`
	UserAgent       string            `json:"user_agent" bson:"user_agent"`
	Path            string            `json:"path" bson:"path"`
	Method          string            `json:"method" bson:"method"`
	Details         map[string]string `json:"details,omitempty" bson:"details,omitempty"`
	Resolved        bool              `json:"resolved" bson:"resolved"`
	ResolutionNotes string            `json:"resolution_notes,omitempty" bson:"resolution_notes,omitempty"`
}
