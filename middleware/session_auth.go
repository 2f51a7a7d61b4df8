package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/session"
)

// SessionAuth validates the session cookie and stores the session in the
// request context. Failures clear the cookie and answer 401; a role
// mismatch answers 403. Renewal-due sessions get a fresh id and cookie in
// the same response.
func (g *Gate) SessionAuth(requiredRoles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := requestContext(c)

			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				g.events.Record(c.Request().Context(), domain.EventUnauthorizedAccess, rc,
					map[string]string{"reason": "missing session cookie"}, "")
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			sess, needsRenewal, err := g.sessions.Validate(c.Request().Context(), cookie.Value, rc)
			if err != nil {
				g.ClearSessionCookie(c)
				switch {
				case errors.Is(err, session.ErrSessionHijacked):
					// Validate already logged the hijack event.
				case errors.Is(err, session.ErrSessionExpired):
					g.events.Record(c.Request().Context(), domain.EventSessionExpired, rc, nil, "")
				default:
					g.events.Record(c.Request().Context(), domain.EventUnauthorizedAccess, rc,
						map[string]string{"reason": "unknown session id"}, "")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "session invalid or expired")
			}

			if needsRenewal {
				renewed, renewErr := g.sessions.Renew(c.Request().Context(), sess)
				if renewErr == nil {
					sess = renewed
					g.SetSessionCookie(c, sess)
				} else if g.logger != nil {
					g.logger.Warn(c.Request().Context(), "session renewal failed",
						map[string]interface{}{"error": renewErr.Error()})
				}
			}

			if len(requiredRoles) > 0 && !roleAllowed(sess.Role, requiredRoles) {
				g.events.Record(c.Request().Context(), domain.EventUnauthorizedAccess, rc,
					map[string]string{"reason": "insufficient role", "role": string(sess.Role)}, sess.UserID)
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}

			c.Set(sessionContextKey, sess)
			return next(c)
		}
	}
}

func roleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
