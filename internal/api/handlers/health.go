package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	ActiveSessions int               `json:"active_sessions"`
	Services       map[string]string `json:"services"`
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"api":      "healthy",
		"database": "unknown",
		"redis":    "disabled",
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			services["database"] = "unhealthy"
		} else {
			services["database"] = "healthy"
		}
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			services["redis"] = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	if h.aiManager != nil {
		if provider := h.aiManager.GetAvailableProvider(); provider != nil {
			services["ai_provider"] = provider.Name()
		} else {
			services["ai_provider"] = "unavailable"
		}
	}

	status := "healthy"
	if services["database"] == "unhealthy" {
		status = "degraded"
	}

	active := 0
	if h.calls != nil {
		active = h.calls.ActiveSessions()
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:         status,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		ActiveSessions: active,
		Services:       services,
	})
}
