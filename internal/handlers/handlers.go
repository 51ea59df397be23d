package handlers

import (
	"net/http"

	"deskify/internal/metrics"
	"deskify/internal/services"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	hub *services.PresenceHub
}

func NewPresenceHandler(hub *services.PresenceHub) *PresenceHandler {
	return &PresenceHandler{
		hub: hub,
	}
}

func (h *PresenceHandler) HandleWebSocket(c *gin.Context) {
	h.hub.HandleWebSocket(c)
}

func (h *PresenceHandler) GetStats(c *gin.Context) {
	tenant := c.Query("tenant")
	stats := map[string]interface{}{
		"connected_clients": h.hub.GetClientCount(),
		"status":            "running",
	}
	if tenant != "" {
		stats["online_technicians"] = h.hub.OnlineTechnicians(tenant)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": c.GetHeader("X-Request-Time"),
		"version":   "1.0.0",
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Metrics 输出进程内计数器快照
func (h *MetricsHandler) Metrics(c *gin.Context) {
	asgTotal, asgBy := metrics.AssignmentSnapshot()
	rlTotal, rlBy := metrics.RateLimitSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"assignments": gin.H{
			"total":      asgTotal,
			"by_outcome": asgBy,
		},
		"rate_limit_drops": gin.H{
			"total":     rlTotal,
			"by_prefix": rlBy,
		},
	})
}
