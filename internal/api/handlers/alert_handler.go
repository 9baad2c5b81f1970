// internal/api/handlers/alert_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/service"
)

type AlertHandler struct {
	svc *service.ForecastService
}

func NewAlertHandler(svc *service.ForecastService) *AlertHandler {
	return &AlertHandler{svc: svc}
}

// GetActive lists currently active alerts.
func (h *AlertHandler) GetActive(c *gin.Context) {
	alerts, err := h.svc.ActiveAlerts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// Check re-evaluates restock urgency across the catalog and returns the
// triggered views, most severe first.
func (h *AlertHandler) Check(c *gin.Context) {
	views, err := h.svc.ComputeAlerts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": views, "count": len(views)})
}

type acknowledgeRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// Acknowledge marks an alert as seen.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	alertID, err := strconv.ParseInt(c.Param("alertID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	if err := h.svc.AcknowledgeAlert(c.Request.Context(), alertID, req.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acknowledge alert"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// Resolve deactivates an alert.
func (h *AlertHandler) Resolve(c *gin.Context) {
	alertID, err := strconv.ParseInt(c.Param("alertID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	if err := h.svc.ResolveAlert(c.Request.Context(), alertID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve alert"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

// Export archives the active alerts as CSV to object storage.
func (h *AlertHandler) Export(c *gin.Context) {
	key, err := h.svc.ExportAlerts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
