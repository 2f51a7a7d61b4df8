package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/domain"
)

// IPAllowlist restricts a route group to the configured addresses. An
// empty list disables the check, which is the development default.
func (g *Gate) IPAllowlist(allowed []string) echo.MiddlewareFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, ip := range allowed {
		allowedSet[ip] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(allowedSet) == 0 {
				return next(c)
			}

			rc := requestContext(c)
			if _, ok := allowedSet[rc.SourceIP]; !ok {
				g.events.Record(c.Request().Context(), domain.EventIPBlocked, rc,
					map[string]string{"reason": "ip not on allow-list"}, "")
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}
			return next(c)
		}
	}
}
