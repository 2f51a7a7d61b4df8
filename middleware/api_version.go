package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/domain"
)

// APIVersionHeader selects the API contract version on machine requests.
const APIVersionHeader = "X-Api-Version"

// APIVersion rejects requests carrying an unsupported x-api-version
// header. Requests without the header pass through: browser traffic does
// not version itself.
func (g *Gate) APIVersion() echo.MiddlewareFunc {
	supported := make(map[string]struct{}, len(g.cfg.SupportedAPIVersions))
	for _, v := range g.cfg.SupportedAPIVersions {
		supported[v] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			version := c.Request().Header.Get(APIVersionHeader)
			if version == "" {
				return next(c)
			}
			if _, ok := supported[version]; !ok {
				rc := requestContext(c)
				g.events.Record(c.Request().Context(), domain.EventUnauthorizedAPIAccess, rc,
					map[string]string{"reason": "unsupported api version", "version": version}, "")
				return echo.NewHTTPError(http.StatusBadRequest, "unsupported API version")
			}
			return next(c)
		}
	}
}
