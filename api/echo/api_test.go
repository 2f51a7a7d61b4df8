package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	echolib "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloursalon/websec/config"
	"github.com/veloursalon/websec/csrf"
	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/internal/auth"
	"github.com/veloursalon/websec/loginguard"
	"github.com/veloursalon/websec/middleware"
	"github.com/veloursalon/websec/seclog"
	"github.com/veloursalon/websec/session"
	"github.com/veloursalon/websec/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (n *captureNotifier) Notify(_ context.Context, alert domain.Alert) {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
}

func (n *captureNotifier) Alerts() []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Alert, len(n.alerts))
	copy(out, n.alerts)
	return out
}

type apiFixture struct {
	e        *echolib.Echo
	clock    *fakeClock
	notifier *captureNotifier
	events   *seclog.Log
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	clock := newFakeClock()
	notifier := &captureNotifier{}

	sessKV := store.NewMemory[domain.Session]()
	csrfKV := store.NewMemory[domain.CSRFToken]()
	guardKV := store.NewMemory[domain.LoginAttemptRecord]()
	t.Cleanup(func() {
		sessKV.Close()
		csrfKV.Close()
		guardKV.Close()
	})

	events := seclog.New(nil, seclog.Options{Now: clock.Now, Notifier: notifier})
	sessions := session.NewStore(sessKV, session.DefaultProfiles(false), events).WithClock(clock.Now)
	csrfStore := csrf.NewStore(csrfKV, 0).WithClock(clock.Now)
	guard := loginguard.New(guardKV, loginguard.Policy{}).WithClock(clock.Now)

	cfg := &config.SecurityConfig{Environment: "local", SupportedAPIVersions: []string{"1"}}
	gate := middleware.NewGate(cfg, sessions, csrfStore, guard, events, nil)

	hasher := auth.NewBcryptPasswordHasher(4)
	hash, err := hasher.Hash("rosewater-32")
	require.NoError(t, err)
	users := NewStaticDirectory(User{
		ID:           "u-1",
		Email:        "a@b.com",
		Role:         domain.RoleUser,
		PasswordHash: hash,
	})

	sa := NewSecurityAPI(cfg, gate, sessions, csrfStore, guard, events, hasher, users, nil)
	e := echolib.New()
	sa.RegisterRoutes(e)

	return &apiFixture{e: e, clock: clock, notifier: notifier, events: events}
}

func (f *apiFixture) postLogin(email, password, ip string) *httptest.ResponseRecorder {
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echolib.HeaderContentType, echolib.MIMEApplicationJSON)
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postLogin("a@b.com", "rosewater-32", "10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload["csrf_token"])

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "login must set the session cookie")
	assert.True(t, sessionCookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, sessionCookie.SameSite)

	// Logout destroys the session.
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.AddCookie(sessionCookie)
	rec2 := httptest.NewRecorder()
	f.e.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusNoContent, rec2.Code)

	// The cookie no longer authenticates.
	req = httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.AddCookie(sessionCookie)
	rec3 := httptest.NewRecorder()
	f.e.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusUnauthorized, rec3.Code)
}

func TestBruteForceScenario(t *testing.T) {
	f := newAPIFixture(t)
	const ip = "10.0.0.1"

	// Five failures inside a minute.
	for i := 0; i < 5; i++ {
		rec := f.postLogin("a@b.com", "wrong-password", ip)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		f.clock.Advance(10 * time.Second)
	}

	// Attempt six is denied with a lockout message before credentials run.
	rec := f.postLogin("a@b.com", "rosewater-32", ip)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "try again")

	// A login_failure alert fired.
	var loginAlert bool
	for _, a := range f.notifier.Alerts() {
		if a.Type == domain.EventLoginFailure && a.SourceIP == ip {
			loginAlert = true
		}
	}
	assert.True(t, loginAlert, "expected a login_failure alert")

	// The log holds five login_failure events from that source.
	failures := 0
	for _, ev := range f.events.Events(0) {
		if ev.Type == domain.EventLoginFailure && ev.SourceIP == ip {
			failures++
			assert.NotContains(t, ev.Details, "password", "password must never be logged")
		}
	}
	assert.Equal(t, 5, failures)

	// After the lockout window the source may try again.
	f.clock.Advance(16 * time.Minute)
	rec = f.postLogin("a@b.com", "rosewater-32", ip)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownUserCountsAsFailure(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postLogin("ghost@b.com", "whatever", "10.0.0.2")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	events := f.events.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventLoginFailure, events[0].Type)
	assert.Equal(t, "1", events[0].Details["consecutive_failures"])
}
