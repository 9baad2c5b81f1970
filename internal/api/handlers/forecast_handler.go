// internal/api/handlers/forecast_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/service"
)

const dateLayout = "2006-01-02"

type ForecastHandler struct {
	svc *service.ForecastService
}

func NewForecastHandler(svc *service.ForecastService) *ForecastHandler {
	return &ForecastHandler{svc: svc}
}

// GetForecast runs an ad hoc forecast for one product.
// Query params: horizon (days, default 30), cutoff and start (YYYY-MM-DD).
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	horizon := 30
	if raw := c.Query("horizon"); raw != "" {
		horizon, err = strconv.Atoi(raw)
		if err != nil || horizon < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid horizon"})
			return
		}
	}

	var cutoff *time.Time
	if raw := c.Query("cutoff"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cutoff date"})
			return
		}
		cutoff = &t
	}

	var start time.Time
	if raw := c.Query("start"); raw != "" {
		start, err = time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
			return
		}
	}

	points, err := h.svc.Forecast(c.Request.Context(), productID, horizon, cutoff, start)
	if err != nil {
		if domain.IsInsufficientData(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		var idr *domain.InvalidDateRangeError
		if errors.As(err, &idr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": idr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"horizon":    horizon,
		"forecasts":  points,
	})
}

// Retrain triggers the rolling retrain walk for the whole catalog.
func (h *ForecastHandler) Retrain(c *gin.Context) {
	results, err := h.svc.RetrainAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retrain failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// RetrainProduct triggers the rolling retrain walk for one product.
func (h *ForecastHandler) RetrainProduct(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	result, err := h.svc.RetrainProduct(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retrain failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Generate refreshes the live daily and weekly forecast set for one
// product.
func (h *ForecastHandler) Generate(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	written, err := h.svc.GenerateLiveForecasts(c.Request.Context(), productID)
	if err != nil {
		if domain.IsInsufficientData(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forecast generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "forecasts_written": written})
}

// GetAccuracy reports multi-horizon forecast accuracy.
// Query param: days_back (default 30).
func (h *ForecastHandler) GetAccuracy(c *gin.Context) {
	daysBack := 30
	if raw := c.Query("days_back"); raw != "" {
		var err error
		daysBack, err = strconv.Atoi(raw)
		if err != nil || daysBack < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days_back"})
			return
		}
	}

	acc, err := h.svc.Accuracy(c.Request.Context(), daysBack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "accuracy computation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days_back": daysBack, "accuracy": acc})
}

// GetProductAccuracy reports one product's accuracy.
func (h *ForecastHandler) GetProductAccuracy(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	daysBack := 30
	if raw := c.Query("days_back"); raw != "" {
		daysBack, err = strconv.Atoi(raw)
		if err != nil || daysBack < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days_back"})
			return
		}
	}

	acc, err := h.svc.ProductAccuracy(c.Request.Context(), productID, daysBack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "accuracy computation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "days_back": daysBack, "accuracy": acc})
}

type reconcileRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
}

// ReconcileSnapshots fills actual sales into a product's snapshots for one
// date.
func (h *ForecastHandler) ReconcileSnapshots(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id and date are required"})
		return
	}

	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}

	updated, err := h.svc.ReconcileActual(c.Request.Context(), req.ProductID, day)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": req.ProductID, "date": req.Date, "updated": updated})
}
