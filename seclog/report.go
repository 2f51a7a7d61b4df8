package seclog

import (
	"sort"
	"time"

	"github.com/veloursalon/websec/domain"
)

// SourceCount pairs a source IP with its event count for the top-N list.
type SourceCount struct {
	SourceIP string `json:"source_ip"`
	Count    int    `json:"count"`
}

// Report aggregates the retained events for an operator-facing summary.
type Report struct {
	Start           time.Time                `json:"start"`
	End             time.Time                `json:"end"`
	TotalEvents     int                      `json:"total_events"`
	ByType          map[domain.EventType]int `json:"by_type"`
	BySeverity      map[domain.Severity]int  `json:"by_severity"`
	ByDay           map[string]int           `json:"by_day"`
	TopSources      []SourceCount            `json:"top_sources"`
	Recommendations []string                 `json:"recommendations"`
}

const reportTopSources = 10

// GenerateReport aggregates events with start <= timestamp < end.
func (l *Log) GenerateReport(start, end time.Time) Report {
	r := Report{
		Start:      start,
		End:        end,
		ByType:     make(map[domain.EventType]int),
		BySeverity: make(map[domain.Severity]int),
		ByDay:      make(map[string]int),
	}

	perSource := make(map[string]int)

	l.mu.Lock()
	for _, ev := range l.events {
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		r.TotalEvents++
		r.ByType[ev.Type]++
		r.BySeverity[ev.Severity]++
		r.ByDay[ev.Timestamp.Format("2006-01-02")]++
		if ev.SourceIP != "" {
			perSource[ev.SourceIP]++
		}
	}
	l.mu.Unlock()

	r.TopSources = topSources(perSource, reportTopSources)
	r.Recommendations = recommendations(r)
	return r
}

func topSources(counts map[string]int, n int) []SourceCount {
	out := make([]SourceCount, 0, len(counts))
	for ip, c := range counts {
		out = append(out, SourceCount{SourceIP: ip, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SourceIP < out[j].SourceIP
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// recommendations derives free-text advice from fixed heuristics over the
// aggregate counts.
func recommendations(r Report) []string {
	var recs []string
	if r.ByType[domain.EventLoginFailure] > 20 {
		recs = append(recs, "High volume of login failures: consider CAPTCHA on the login form and tightening the lockout policy.")
	}
	if r.ByType[domain.EventCSRFTokenInvalid] > 10 {
		recs = append(recs, "Excessive CSRF failures: strengthen token verification and check for form pages served from cache.")
	}
	if r.ByType[domain.EventSessionHijackAttempt] > 0 {
		recs = append(recs, "Session hijack attempts detected: review session binding and rotate any long-lived credentials.")
	}
	if r.ByType[domain.EventSQLInjectionAttempt] > 0 || r.ByType[domain.EventXSSAttempt] > 0 {
		recs = append(recs, "Injection attempts detected: audit input validation on all public forms.")
	}
	if r.BySeverity[domain.SeverityCritical] > 5 {
		recs = append(recs, "Multiple critical events in the period: review alert handling and consider blocking the top offending sources.")
	}
	if len(recs) == 0 {
		recs = append(recs, "No significant anomalies in the reporting period.")
	}
	return recs
}
