package seclog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/veloursalon/websec/domain"
)

// Threshold defines when repeated events of one type from one source turn
// into an operator alert. A zero Window means any window (count alone).
type Threshold struct {
	Count  int
	Window time.Duration
}

// DefaultThresholds mirrors the alert policy of the production site.
func DefaultThresholds() map[domain.EventType]Threshold {
	return map[domain.EventType]Threshold{
		domain.EventLoginFailure:          {Count: 5, Window: 5 * time.Minute},
		domain.EventCSRFTokenInvalid:      {Count: 5, Window: 5 * time.Minute},
		domain.EventRateLimitExceeded:     {Count: 3, Window: time.Minute},
		domain.EventSessionHijackAttempt:  {Count: 1},
		domain.EventUnauthorizedAPIAccess: {Count: 1},
		domain.EventInvalidSignature:      {Count: 1},
		domain.EventSQLInjectionAttempt:   {Count: 1},
		domain.EventXSSAttempt:            {Count: 1},
		domain.EventSuspiciousActivity:    {Count: 1},
	}
}

// alertState is the per-(type, source IP) counter.
type alertState struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
	lastFired   time.Time
}

// checkAlertLocked feeds one event into the alert counters and returns the
// alert to emit, if any. Firing does not reset the counter; a debounce
// window keeps a sustained burst from re-firing on every event. Caller
// holds l.mu.
func (l *Log) checkAlertLocked(event domain.SecurityEvent, now time.Time) *domain.Alert {
	th, ok := l.thresholds[event.Type]
	if !ok {
		return nil
	}
	key := string(event.Type) + "|" + event.SourceIP
	st, ok := l.alerts[key]
	if !ok || (th.Window > 0 && now.Sub(st.windowStart) > th.Window) {
		st = &alertState{windowStart: now}
		l.alerts[key] = st
	}
	st.count++
	st.lastSeen = now

	if st.count < th.Count {
		return nil
	}
	if !st.lastFired.IsZero() && now.Sub(st.lastFired) < l.debounce {
		return nil
	}
	st.lastFired = now

	return &domain.Alert{
		Type:            event.Type,
		Severity:        event.Severity,
		SourceIP:        event.SourceIP,
		UserAgent:       event.UserAgent,
		Count:           st.count,
		Threshold:       th.Count,
		WindowSeconds:   int(th.Window / time.Second),
		FirstOccurrence: st.windowStart,
		LastOccurrence:  now,
	}
}

// AlertCount reports how many alert counters have fired at least once.
func (l *Log) AlertCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.alerts {
		if !st.lastFired.IsZero() {
			n++
		}
	}
	return n
}

// Notifier delivers alert payloads to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert)
}

// ConsoleNotifier writes alerts to stderr. It is the development channel;
// production deployments install an external notifier instead.
type ConsoleNotifier struct {
	logger zerolog.Logger
}

// NewConsoleNotifier creates the stderr alert channel.
func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger(),
	}
}

// Notify implements Notifier.
func (n *ConsoleNotifier) Notify(_ context.Context, alert domain.Alert) {
	n.logger.Warn().
		Str("type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("source_ip", alert.SourceIP).
		Int("count", alert.Count).
		Int("threshold", alert.Threshold).
		Time("first_occurrence", alert.FirstOccurrence).
		Time("last_occurrence", alert.LastOccurrence).
		Msg(fmt.Sprintf("SECURITY ALERT: %s from %s", alert.Type, alert.SourceIP))
}
