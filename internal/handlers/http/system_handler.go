package http

import (
	"context"
	"net/http"
	"time"

	"twintalk/internal/infrastructure/monitoring"
	"twintalk/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
)

// Counters reports live totals for the health endpoint.
type Counters interface {
	ConnectionCount() int
	MeetingCount() int
}

type SystemHandler struct {
	counters   Counters
	health     *monitoring.HealthChecker
	iceServers []webrtc.ICEServer
	startTime  time.Time
}

func NewSystemHandler(counters Counters, health *monitoring.HealthChecker, iceServers []webrtc.ICEServer) *SystemHandler {
	return &SystemHandler{
		counters:   counters,
		health:     health,
		iceServers: iceServers,
		startTime:  time.Now(),
	}
}

func (h *SystemHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/api/v1/ice-servers", h.ICEServers)
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now(),
		"uptime":      utils.FormatDuration(time.Since(h.startTime)),
		"connections": h.counters.ConnectionCount(),
		"meetings":    h.counters.MeetingCount(),
	})
}

func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := h.health.CheckAll(ctx)
	if status.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": status.Timestamp,
			"checks":    status.Checks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": status.Timestamp,
		"checks":    status.Checks,
	})
}

func (h *SystemHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"iceServers": h.iceServers,
	})
}
