// Package api contains the HTTP handlers for the construction plan service.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "graphplan-mcp",
		Version:   "1.0.0",
	})
}

// RegisterHandlers mounts the run endpoints on the given group.
func RegisterHandlers(g *echo.Group, h *Handler) {
	g.POST("/runs", h.StartRun)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/runs/:id/plan", h.GetPlan)
	g.POST("/runs/:id/apply", h.ApplyPlan)
}
