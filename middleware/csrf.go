package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/domain"
)

// CSRFTokenHeader carries the token on mutating requests; forms may send
// it in the csrf_token field instead.
const (
	CSRFTokenHeader = "X-CSRF-Token"
	CSRFTokenField  = "csrf_token"
)

// CSRF validates the one-time token on state-changing requests. Safe
// methods bypass the check entirely. Must run after SessionAuth.
func (g *Gate) CSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if domain.IsSafeMethod(c.Request().Method) {
				return next(c)
			}

			rc := requestContext(c)
			sess, ok := SessionFromContext(c)
			if !ok {
				g.events.Record(c.Request().Context(), domain.EventCSRFTokenInvalid, rc,
					map[string]string{"reason": "no session for csrf check"}, "")
				return echo.NewHTTPError(http.StatusForbidden, "invalid CSRF token")
			}

			token := c.Request().Header.Get(CSRFTokenHeader)
			if token == "" {
				token = c.FormValue(CSRFTokenField)
			}
			if token == "" {
				g.events.Record(c.Request().Context(), domain.EventCSRFTokenInvalid, rc,
					map[string]string{"reason": "token missing"}, sess.UserID)
				return echo.NewHTTPError(http.StatusForbidden, "missing CSRF token")
			}

			if err := g.csrf.Verify(c.Request().Context(), sess.ID, token); err != nil {
				g.events.Record(c.Request().Context(), domain.EventCSRFTokenInvalid, rc,
					map[string]string{"reason": err.Error()}, sess.UserID)
				return echo.NewHTTPError(http.StatusForbidden, "invalid CSRF token")
			}

			return next(c)
		}
	}
}
