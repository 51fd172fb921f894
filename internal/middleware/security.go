package middleware

import (
	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/model"
)

const relayedKey = "gateway.relayed"

// MarkRelayed records that the response carries an upstream's headers, which
// are relayed as sent.
func MarkRelayed(c echo.Context) {
	c.Set(relayedKey, true)
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from the inbound request and sets default security headers on responses
// the gateway generates itself. Relayed upstream responses are left alone.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			model.StripHopByHop(c.Request().Header)

			res := c.Response()
			res.Before(func() {
				if relayed, _ := c.Get(relayedKey).(bool); relayed {
					return
				}
				h := res.Header()
				if h.Get("X-Content-Type-Options") == "" {
					h.Set("X-Content-Type-Options", "nosniff")
				}
				if h.Get("X-Frame-Options") == "" {
					h.Set("X-Frame-Options", "DENY")
				}
			})

			return next(c)
		}
	}
}
