package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantrail/autoscaler/internal/collector"
	"github.com/quantrail/autoscaler/internal/guard"
	"github.com/quantrail/autoscaler/internal/orchestrator"
	"github.com/quantrail/autoscaler/pkg/database/queries"
	"github.com/quantrail/autoscaler/pkg/models"
)

// Controller is the slice of the orchestrator the API needs.
type Controller interface {
	Services() []string
	ServiceState(service string) orchestrator.ServiceState
	LastDecision(service string) (*models.ScalingDecision, bool)
	Override(ctx context.Context, service string, target int) (*models.ScalingDecision, error)
	Collector() *collector.Service
	Guard() *guard.Guard
}

type StatusHandler struct {
	controller Controller
	eventsRepo *queries.ScalingEventRepository
}

func NewStatusHandler(controller Controller, eventsRepo *queries.ScalingEventRepository) *StatusHandler {
	return &StatusHandler{controller: controller, eventsRepo: eventsRepo}
}

type ServiceStatus struct {
	Service           string                  `json:"service"`
	State             string                  `json:"state"`
	Stale             bool                    `json:"stale"`
	Snapshot          *models.ServiceMetrics  `json:"snapshot,omitempty"`
	LastDecision      *models.ScalingDecision `json:"last_decision,omitempty"`
	ScaleUpCooldown   string                  `json:"scale_up_cooldown_remaining"`
	ScaleDownCooldown string                  `json:"scale_down_cooldown_remaining"`
}

func (h *StatusHandler) serviceStatus(service string) ServiceStatus {
	status := ServiceStatus{
		Service: service,
		State:   string(h.controller.ServiceState(service)),
		Stale:   h.controller.Collector().Stale(service),
	}

	if snapshot, ok := h.controller.Collector().Snapshot(service); ok {
		status.Snapshot = snapshot
	}
	if decision, ok := h.controller.LastDecision(service); ok {
		status.LastDecision = decision
	}

	up, down := h.controller.Guard().CooldownRemaining(service)
	status.ScaleUpCooldown = up.Round(time.Second).String()
	status.ScaleDownCooldown = down.Round(time.Second).String()

	return status
}

func (h *StatusHandler) List(c *gin.Context) {
	services := h.controller.Services()
	statuses := make([]ServiceStatus, 0, len(services))
	for _, service := range services {
		statuses = append(statuses, h.serviceStatus(service))
	}
	c.JSON(http.StatusOK, gin.H{"services": statuses})
}

func (h *StatusHandler) Get(c *gin.Context) {
	service := c.Param("name")
	if !h.knownService(service) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}
	c.JSON(http.StatusOK, h.serviceStatus(service))
}

func (h *StatusHandler) GetEvents(c *gin.Context) {
	if h.eventsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not configured"})
		return
	}
	service := c.Param("name")
	if !h.knownService(service) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}

	from, to := timeRange(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	scalingEvents, err := h.eventsRepo.GetByService(ctx, service, from, to, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": scalingEvents, "count": len(scalingEvents)})
}

func (h *StatusHandler) GetStats(c *gin.Context) {
	if h.eventsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not configured"})
		return
	}
	service := c.Param("name")
	if !h.knownService(service) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}

	from, to := timeRange(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.eventsRepo.GetStats(ctx, service, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *StatusHandler) GetRecentEvents(c *gin.Context) {
	if h.eventsRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	scalingEvents, err := h.eventsRepo.GetRecent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": scalingEvents, "count": len(scalingEvents)})
}

func (h *StatusHandler) knownService(service string) bool {
	for _, s := range h.controller.Services() {
		if s == service {
			return true
		}
	}
	return false
}

func timeRange(c *gin.Context) (time.Time, time.Time) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if v := c.Query("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			from = parsed
		}
	}
	if v := c.Query("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			to = parsed
		}
	}
	return from, to
}
