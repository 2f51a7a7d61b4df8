// Package middleware composes the security core into the ordered request
// gate: version check, IP allow-list, session authentication, CSRF
// validation, and the login lockout gate. The first failing check
// terminates the request.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/config"
	"github.com/veloursalon/websec/csrf"
	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/log"
	"github.com/veloursalon/websec/loginguard"
	"github.com/veloursalon/websec/seclog"
	"github.com/veloursalon/websec/session"
)

// SessionCookieName is the cookie carrying the opaque session id.
const SessionCookieName = "session-id"

const sessionContextKey = "websec.session"

// Gate holds the security components the middleware chain consults.
type Gate struct {
	cfg      *config.SecurityConfig
	sessions *session.Store
	csrf     *csrf.Store
	guard    *loginguard.Guard
	events   *seclog.Log
	logger   log.Logger
}

// NewGate wires the components into a middleware factory.
func NewGate(
	cfg *config.SecurityConfig,
	sessions *session.Store,
	csrfStore *csrf.Store,
	guard *loginguard.Guard,
	events *seclog.Log,
	logger log.Logger,
) *Gate {
	return &Gate{
		cfg:      cfg,
		sessions: sessions,
		csrf:     csrfStore,
		guard:    guard,
		events:   events,
		logger:   logger,
	}
}

// SessionFromContext returns the validated session stored by SessionAuth.
func SessionFromContext(c echo.Context) (*domain.Session, bool) {
	sess, ok := c.Get(sessionContextKey).(*domain.Session)
	return sess, ok
}

// SetSessionCookie writes the session cookie with the profile attributes
// for the session's role.
func (g *Gate) SetSessionCookie(c echo.Context, sess *domain.Session) {
	profile := g.sessions.CookieProfile(sess.Role)
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(profile.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   profile.CookieSecure,
		SameSite: profile.CookieSameSite,
	})
}

// ClearSessionCookie expires the session cookie on the client.
func (g *Gate) ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func requestContext(c echo.Context) domain.RequestContext {
	return domain.RequestContextFromHTTP(c.Request())
}
