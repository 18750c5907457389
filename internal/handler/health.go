package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"api-bridge-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status     string   `json:"status"`
	Version    string   `json:"version"`
	BackendURL string   `json:"backend_url"`
	Routes     []string `json:"routes"`
}

// Status returns bridge status information.
func (h *HealthHandler) Status(c echo.Context) error {
	routes := make([]string, 0, len(h.cfg.Routes))
	for _, rt := range h.cfg.Routes {
		routes = append(routes, rt.Prefix)
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    string(h.version),
		BackendURL: h.cfg.Backend.URL,
		Routes:     routes,
	})
}
