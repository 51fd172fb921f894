package handler

import (
	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/config"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every path
// the gateway does not serve itself goes to the proxy, which answers 404 for
// paths outside the route table. Any only covers the common methods, so the
// not-found route catches the rest (PURGE, PROPFIND, ...).
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET(config.HealthPath, health.Health)
	e.GET(config.StatusPath, health.Status)

	e.Any("/*", proxy.Handle)
	e.RouteNotFound("/*", proxy.Handle)
}
