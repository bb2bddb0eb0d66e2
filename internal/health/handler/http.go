package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse is the body of the liveness endpoints.
type StatusResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse is the body of the dependency health endpoint.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HTTPHandler serves the HTTP health endpoints.
type HTTPHandler struct {
	service   string
	version   string
	checks    []Check
	startedAt time.Time
}

// NewHTTPHandler returns an HTTPHandler reporting on checks.
func NewHTTPHandler(service, version string, checks ...Check) *HTTPHandler {
	return &HTTPHandler{service: service, version: version, checks: checks, startedAt: time.Now().UTC()}
}

// Live reports that the process is serving.
func (h *HTTPHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:    "healthy",
		Service:   h.service,
		Version:   h.version,
		StartedAt: h.startedAt,
	})
}

// Ready pings every dependency. It answers 503 when any of them fails.
func (h *HTTPHandler) Ready(c *gin.Context) {
	results, healthy := runChecks(c.Request.Context(), h.checks)
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "unhealthy", Checks: results})
		return
	}
	c.JSON(http.StatusOK, ReadinessResponse{Status: "healthy", Checks: results})
}

// Root describes the service.
func (h *HTTPHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.service + " API",
		"version": h.version,
		"health":  "/api/v1/health/",
	})
}
