package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantrail/autoscaler/api/middleware"
	"github.com/quantrail/autoscaler/internal/guard"
	"github.com/quantrail/autoscaler/internal/logger"
)

type OverrideHandler struct {
	controller Controller
}

func NewOverrideHandler(controller Controller) *OverrideHandler {
	return &OverrideHandler{controller: controller}
}

type OverrideRequest struct {
	Target int    `json:"target" binding:"required,min=0"`
	Reason string `json:"reason"`
}

type OverrideResponse struct {
	Service   string `json:"service"`
	Target    int    `json:"target"`
	Executed  bool   `json:"executed"`
	Direction string `json:"direction"`
	Operator  string `json:"operator,omitempty"`
}

// Override pushes a manual instance target through the authorization and
// execution path. The compliance guard still has the final word.
func (h *OverrideHandler) Override(c *gin.Context) {
	service := c.Param("name")
	operator := middleware.GetOperator(c)

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	found := false
	for _, s := range h.controller.Services() {
		if s == service {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})
		return
	}

	logger.WithService(service).Infof("Manual override by %s: target %d (%s)", operator, req.Target, req.Reason)

	decision, err := h.controller.Override(c.Request.Context(), service, req.Target)
	if err != nil {
		var violation *guard.ViolationError
		if errors.As(err, &violation) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "override rejected",
				"constraint": violation.Constraint,
				"detail":     violation.Message,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, OverrideResponse{
		Service:   service,
		Target:    decision.TargetInstances,
		Executed:  decision.ShouldExecute(),
		Direction: string(decision.Direction),
		Operator:  operator,
	})
}
