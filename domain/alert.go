package domain

import "time"

// Alert is the payload emitted to the operator channel when a
// per-(type, source IP) event counter crosses its configured threshold.
type Alert struct {
	Type            EventType `json:"type"`
	Severity        Severity  `json:"severity"`
	SourceIP        string    `json:"source_ip"`
	UserAgent       string    `json:"user_agent,omitempty"`
	Count           int       `json:"count"`
	Threshold       int       `json:"threshold"`
	WindowSeconds   int       `json:"window_seconds"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}
