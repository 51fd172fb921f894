package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/config"
)

// Preflight returns an Echo pre-router middleware that sets CORS headers on
// every response and answers OPTIONS requests itself with 200 and an empty
// body. Register it with e.Pre so no route, credential check or upstream call
// runs for a preflight.
func Preflight(cfg config.CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	anyOrigin := slices.Contains(cfg.AllowOrigins, "*")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			if anyOrigin {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else {
				h.Add(echo.HeaderVary, echo.HeaderOrigin)
				if origin := c.Request().Header.Get(echo.HeaderOrigin); origin != "" && slices.Contains(cfg.AllowOrigins, origin) {
					h.Set(echo.HeaderAccessControlAllowOrigin, origin)
				}
			}
			if methods != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			if cfg.MaxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAge))
			}
			return c.NoContent(http.StatusOK)
		}
	}
}
