package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Stats     any               `json:"stats,omitempty"`
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"api":      "healthy",
		"database": "healthy",
	}

	if err := h.store.Ping(ctx); err != nil {
		services["database"] = "unhealthy"
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

	overallStatus := "healthy"
	for _, status := range services {
		if status == "unhealthy" {
			overallStatus = "degraded"
			break
		}
	}

	resp := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().Format(time.RFC3339),
		Services:  services,
	}
	if services["database"] == "healthy" {
		if stats, err := h.store.Stats(ctx); err == nil {
			resp.Stats = stats
		}
	}
	c.JSON(http.StatusOK, resp)
}
