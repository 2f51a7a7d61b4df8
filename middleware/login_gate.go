package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/domain"
)

// LoginRateGate fronts the authentication endpoint. A source under active
// lockout is denied before the credential check runs, with a
// human-readable retry time. Recording failures and successes stays with
// the login handler, which knows the outcome.
func (g *Gate) LoginRateGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := requestContext(c)

			decision, err := g.guard.CheckAllowed(c.Request().Context(), rc.SourceIP)
			if err != nil {
				// Guard storage trouble: fail closed for the login path.
				if g.logger != nil {
					g.logger.Error(c.Request().Context(), "login guard check failed", err, nil)
				}
				return echo.NewHTTPError(http.StatusServiceUnavailable, "try again later")
			}

			if !decision.Allowed {
				retryIn := time.Until(decision.LockedUntil).Round(time.Second)
				if retryIn < 0 {
					retryIn = 0
				}
				g.events.Record(c.Request().Context(), domain.EventRateLimitExceeded, rc,
					map[string]string{"locked_until": decision.LockedUntil.Format(time.RFC3339)}, "")
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(retryIn.Seconds())))
				return echo.NewHTTPError(http.StatusTooManyRequests,
					fmt.Sprintf("too many failed attempts, try again in %s", retryIn))
			}

			return next(c)
		}
	}
}
