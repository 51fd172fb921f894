package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the gateway's own health and status endpoints.
// Neither calls upstream services.
type HealthHandler struct {
	routes  *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(routes *route.Table, v Version) *HealthHandler {
	return &HealthHandler{routes: routes, version: v}
}

type healthResponse struct {
	Status  string `json:"status"`
	Gateway bool   `json:"gateway"`
}

type statusResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Routes  []string `json:"routes"`
}

// Health reports that the gateway process is up.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Gateway: true})
}

// Status returns the build version and the configured route prefixes.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Routes:  h.routes.Prefixes(),
	})
}
