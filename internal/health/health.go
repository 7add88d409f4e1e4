// Package health exposes the liveness/readiness endpoint.
package health

import (
	"context"
	"net/http"
	"time"

	"healthtrack/backend/internal/db"

	"github.com/gin-gonic/gin"
)

// Handler serves health check requests
type Handler struct {
	database *db.Database
	timeout  time.Duration
}

// NewHandler creates a new health handler
func NewHandler(database *db.Database, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{database: database, timeout: timeout}
}

type checkResult struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Check reports process and database health
func (h *Handler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result := checkResult{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if err := h.database.HealthCheck(ctx); err != nil {
		result.Status = "degraded"
		result.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, result)
}
