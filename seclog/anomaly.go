package seclog

import (
	"time"

	"github.com/veloursalon/websec/domain"
)

const (
	// anomalyWindow and anomalyLimit define the burst detector: more than
	// anomalyLimit events from one source inside the window synthesizes a
	// suspicious_activity event.
	anomalyWindow = time.Minute
	anomalyLimit  = 10

	// trackerMaxIdle is how long a quiet tracker survives before the sweep
	// removes it.
	trackerMaxIdle = time.Hour
)

// ipTracker is the rolling per-source activity window.
type ipTracker struct {
	count      int
	firstSeen  time.Time
	lastSeen   time.Time
	eventTypes map[domain.EventType]int
	flagged    bool // suspicious_activity already synthesized this window
}

// trackLocked updates the per-IP tracker and reports whether a
// suspicious_activity event should be synthesized. Caller holds l.mu.
func (l *Log) trackLocked(sourceIP string, typ domain.EventType, now time.Time) bool {
	if sourceIP == "" {
		return false
	}
	tr, ok := l.trackers[sourceIP]
	if !ok || now.Sub(tr.firstSeen) > anomalyWindow {
		l.trackers[sourceIP] = &ipTracker{
			count:      1,
			firstSeen:  now,
			lastSeen:   now,
			eventTypes: map[domain.EventType]int{typ: 1},
		}
		return false
	}
	tr.count++
	tr.lastSeen = now
	tr.eventTypes[typ]++
	if tr.count > anomalyLimit && !tr.flagged {
		tr.flagged = true
		return true
	}
	return false
}

// SuspiciousIP describes one flagged source in the dashboard snapshot.
type SuspiciousIP struct {
	SourceIP   string                   `json:"source_ip"`
	Count      int                      `json:"count"`
	FirstSeen  time.Time                `json:"first_seen"`
	LastSeen   time.Time                `json:"last_seen"`
	EventTypes map[domain.EventType]int `json:"event_types"`
}
