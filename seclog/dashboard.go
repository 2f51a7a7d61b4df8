package seclog

import (
	"time"

	"github.com/veloursalon/websec/domain"
)

// SystemHealth summarizes recent critical-event volume.
type SystemHealth string

const (
	HealthGood     SystemHealth = "good"
	HealthWarning  SystemHealth = "warning"
	HealthCritical SystemHealth = "critical"
)

const (
	dashboardRecentEvents   = 50
	dashboardLookback       = time.Hour
	dashboardSuspiciousHits = 5
	healthCriticalLimit     = 5
)

// Snapshot is the live view served on the admin security dashboard.
type Snapshot struct {
	RecentEvents  []domain.SecurityEvent `json:"recent_events"`
	AlertCount    int                    `json:"alert_count"`
	SuspiciousIPs []SuspiciousIP         `json:"suspicious_ips"`
	SystemHealth  SystemHealth           `json:"system_health"`
}

// Dashboard builds a point-in-time snapshot: the last 50 events, the fired
// alert count, sources that look suspicious, and a derived health grade.
func (l *Log) Dashboard() Snapshot {
	now := l.now()

	snap := Snapshot{
		RecentEvents: l.Events(dashboardRecentEvents),
		AlertCount:   l.AlertCount(),
	}

	l.mu.Lock()
	for ip, tr := range l.trackers {
		if tr.count > dashboardSuspiciousHits || now.Sub(tr.lastSeen) < dashboardLookback {
			types := make(map[domain.EventType]int, len(tr.eventTypes))
			for t, c := range tr.eventTypes {
				types[t] = c
			}
			snap.SuspiciousIPs = append(snap.SuspiciousIPs, SuspiciousIP{
				SourceIP:   ip,
				Count:      tr.count,
				FirstSeen:  tr.firstSeen,
				LastSeen:   tr.lastSeen,
				EventTypes: types,
			})
		}
	}
	l.mu.Unlock()

	snap.SystemHealth = l.health(now)
	return snap
}

func (l *Log) health(now time.Time) SystemHealth {
	cutoff := now.Add(-dashboardLookback)
	critical := 0

	l.mu.Lock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Timestamp.Before(cutoff) {
			break
		}
		if l.events[i].Severity == domain.SeverityCritical {
			critical++
		}
	}
	l.mu.Unlock()

	switch {
	case critical >= healthCriticalLimit:
		return HealthCritical
	case critical > 0:
		return HealthWarning
	default:
		return HealthGood
	}
}
