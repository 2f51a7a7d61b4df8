// Package seclog is the append-only security event log together with the
// anomaly detector and the threshold alert engine that feed off it. Every
// other component of the security core reports its decisions here.
package seclog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/log"
)

const (
	// maxEvents bounds the in-memory log; the oldest entries are evicted
	// once the ceiling is reached.
	maxEvents = 1000

	// escalateFailureCount is the consecutive-failure count at which a
	// login_failure event is promoted to high severity.
	escalateFailureCount = 5
)

// ErrEventNotFound is returned by Resolve for an unknown event id.
var ErrEventNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "security event not found" }

// Sink receives a copy of every recorded event, typically for durable
// storage outside the process. Forwarding is strictly best-effort: sink
// errors are logged and swallowed, never surfaced to the request path.
type Sink interface {
	Store(ctx context.Context, event domain.SecurityEvent) error
}

// Options tune the log. Zero values fall back to defaults.
type Options struct {
	// Sink, when set, receives every event fire-and-forget.
	Sink Sink
	// Notifier receives alert payloads. Defaults to the console notifier.
	Notifier Notifier
	// AlertDebounce suppresses re-firing of an already-fired alert for
	// this long. The counter keeps incrementing regardless.
	AlertDebounce time.Duration
	// Thresholds overrides the per-type alert thresholds.
	Thresholds map[domain.EventType]Threshold
	// Now supplies the clock, for tests.
	Now func() time.Time
}

// Log is the bounded, append-only event store plus its derived state.
// All methods are safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	events   []domain.SecurityEvent
	trackers map[string]*ipTracker
	alerts   map[string]*alertState

	thresholds map[domain.EventType]Threshold
	debounce   time.Duration
	notifier   Notifier
	sink       Sink
	logger     log.Logger
	now        func() time.Time
}

// New creates an event log.
func New(logger log.Logger, opts Options) *Log {
	l := &Log{
		events:     make([]domain.SecurityEvent, 0, 128),
		trackers:   make(map[string]*ipTracker),
		alerts:     make(map[string]*alertState),
		thresholds: opts.Thresholds,
		debounce:   opts.AlertDebounce,
		notifier:   opts.Notifier,
		sink:       opts.Sink,
		logger:     logger,
		now:        opts.Now,
	}
	if l.thresholds == nil {
		l.thresholds = DefaultThresholds()
	}
	if l.debounce == 0 {
		l.debounce = time.Minute
	}
	if l.notifier == nil {
		l.notifier = NewConsoleNotifier()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Record appends one security event, derives its severity, runs anomaly
// detection and the alert engine, and forwards to the sink when one is
// configured. It returns the event id.
func (l *Log) Record(ctx context.Context, typ domain.EventType, rc domain.RequestContext, details map[string]string, userID string) string {
	return l.record(ctx, typ, rc, details, userID, false)
}

func (l *Log) record(ctx context.Context, typ domain.EventType, rc domain.RequestContext, details map[string]string, userID string, derived bool) string {
	now := l.now()
	event := domain.SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: now,
		Type:      typ,
		Severity:  deriveSeverity(typ, details),
		UserID:    userID,
		SourceIP:  rc.SourceIP,
		UserAgent: rc.UserAgent,
		Path:      rc.Path,
		Method:    rc.Method,
		Details:   Sanitize(details),
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > maxEvents {
		l.events = l.events[len(l.events)-maxEvents:]
	}

	var suspicious bool
	if !derived {
		// One derivation level only: suspicious_activity events never
		// feed the tracker that produces them.
		suspicious = l.trackLocked(rc.SourceIP, typ, now)
	}
	alert := l.checkAlertLocked(event, now)
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Info(ctx, "security event", map[string]interface{}{
			"event_id":  event.ID,
			"type":      string(typ),
			"severity":  string(event.Severity),
			"source_ip": rc.SourceIP,
			"path":      rc.Path,
		})
	}

	if suspicious {
		l.record(ctx, domain.EventSuspiciousActivity, rc, map[string]string{
			"reason": "high event frequency from source",
		}, userID, true)
	}
	if alert != nil {
		l.notify(ctx, *alert)
	}
	if l.sink != nil {
		l.forward(event)
	}

	return event.ID
}

// forward pushes the event to the external sink without blocking the
// request path. Failures are logged and dropped.
func (l *Log) forward(event domain.SecurityEvent) {
	go func() {
		defer func() {
			if r := recover(); r != nil && l.logger != nil {
				l.logger.Warn(context.Background(), "event sink panicked", map[string]interface{}{"panic": r})
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.sink.Store(ctx, event); err != nil && l.logger != nil {
			l.logger.Warn(ctx, "event sink store failed", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func (l *Log) notify(ctx context.Context, alert domain.Alert) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Warn(ctx, "alert notifier panicked", map[string]interface{}{"panic": r})
		}
	}()
	l.notifier.Notify(ctx, alert)
}

// deriveSeverity applies the static table plus contextual escalation.
func deriveSeverity(typ domain.EventType, details map[string]string) domain.Severity {
	sev := domain.BaseSeverity(typ)
	if typ == domain.EventLoginFailure {
		if n, ok := details["consecutive_failures"]; ok && atoi(n) > escalateFailureCount {
			sev = domain.SeverityHigh
		}
	}
	return sev
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Events returns a copy of the newest n events, most recent first.
// n <= 0 returns everything retained.
func (l *Log) Events(n int) []domain.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := len(l.events)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]domain.SecurityEvent, n)
	for i := 0; i < n; i++ {
		out[i] = l.events[total-1-i]
	}
	return out
}

// Resolve marks an event as handled by an operator.
func (l *Log) Resolve(eventID, notes string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.events {
		if l.events[i].ID == eventID {
			l.events[i].Resolved = true
			l.events[i].ResolutionNotes = notes
			return nil
		}
	}
	return ErrEventNotFound
}

// Sweep prunes stale anomaly trackers and alert counters. Wired to the
// periodic maintenance tick.
func (l *Log) Sweep(ctx context.Context) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, tr := range l.trackers {
		if now.Sub(tr.lastSeen) > trackerMaxIdle {
			delete(l.trackers, ip)
		}
	}
	for key, st := range l.alerts {
		if now.Sub(st.lastSeen) > trackerMaxIdle {
			delete(l.alerts, key)
		}
	}
}
