// internal/domain/models.go
package domain

import (
	"fmt"
	"time"
)

// Product is the external inventory entity the forecasting core reads.
// CurrentStock is mutated by inventory operations, never by this core.
type Product struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Category     string    `json:"category" db:"category"`
	UnitCost     float64   `json:"unit_cost" db:"unit_cost"`
	CurrentStock int       `json:"current_stock" db:"current_stock"`
	ReorderPoint int       `json:"reorder_point" db:"reorder_point"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SalesPoint is one day of aggregated unit sales for a product.
type SalesPoint struct {
	Date     time.Time `json:"date" db:"date"`
	Quantity float64   `json:"quantity" db:"quantity"`
}

// Forecast is a persisted point prediction for one target date.
// GeneratedAt is the training cutoff used to produce the record; backtested
// rows always have GeneratedAt before ForecastDate.
type Forecast struct {
	ID                int64      `json:"id" db:"id"`
	ProductID         int64      `json:"product_id" db:"product_id"`
	ForecastDate      time.Time  `json:"forecast_date" db:"forecast_date"`
	PredictedQuantity int        `json:"predicted_quantity" db:"predicted_quantity"`
	ConfidenceLower   float64    `json:"confidence_lower" db:"confidence_lower"`
	ConfidenceUpper   float64    `json:"confidence_upper" db:"confidence_upper"`
	ModelUsed         string     `json:"model_used" db:"model_used"`
	MAE               float64    `json:"mae" db:"mae"`
	RMSE              float64    `json:"rmse" db:"rmse"`
	AggregationLevel  string     `json:"aggregation_level" db:"aggregation_level"`
	PeriodKey         string     `json:"period_key" db:"period_key"`
	GeneratedAt       *time.Time `json:"generated_at,omitempty" db:"generated_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// Aggregation levels for Forecast records.
const (
	AggregationDaily  = "daily"
	AggregationWeekly = "weekly"
)

// ForecastSnapshot records what was predicted for a date at a horizon so it
// can be reconciled with actual sales once they arrive. ActualQuantity and
// the derived accuracy fields stay nil until reconciliation.
type ForecastSnapshot struct {
	ID                int64     `json:"id" db:"id"`
	ProductID         int64     `json:"product_id" db:"product_id"`
	ForecastDate      time.Time `json:"forecast_date" db:"forecast_date"`
	PredictedQuantity float64   `json:"predicted_quantity" db:"predicted_quantity"`
	ActualQuantity    *float64  `json:"actual_quantity,omitempty" db:"actual_quantity"`
	SnapshotCreatedAt time.Time `json:"snapshot_created_at" db:"snapshot_created_at"`
	ModelUsed         string    `json:"model_used" db:"model_used"`
	ForecastHorizon   string    `json:"forecast_horizon" db:"forecast_horizon"`
	Accuracy          *float64  `json:"accuracy,omitempty" db:"accuracy"`
	ErrorPercentage   *float64  `json:"error_percentage,omitempty" db:"error_percentage"`
	ConfidenceLower   float64   `json:"confidence_lower" db:"confidence_lower"`
	ConfidenceUpper   float64   `json:"confidence_upper" db:"confidence_upper"`
	MAE               float64   `json:"mae" db:"mae"`
	RMSE              float64   `json:"rmse" db:"rmse"`
}

// Forecast horizon labels used on snapshots.
const (
	HorizonOneDay    = "1-day"
	HorizonSevenDay  = "7-day"
	HorizonThirtyDay = "30-day"
)

// Severity ranks restock alerts; escalation may only move up the ladder.
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the numeric ordering of a severity, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Alert types.
const (
	AlertTypeForecastShortage = "forecast_shortage"
	AlertTypeLowStock         = "low_stock"
)

// Alert is an open or historical restock alert. At most one row per
// (product, alert_type) may be active and unacknowledged at a time.
type Alert struct {
	ID                  int64      `json:"id" db:"id"`
	ProductID           int64      `json:"product_id" db:"product_id"`
	AlertType           string     `json:"alert_type" db:"alert_type"`
	Severity            Severity   `json:"severity" db:"severity"`
	Message             string     `json:"message" db:"message"`
	RecommendedOrderQty int        `json:"recommended_order_qty" db:"recommended_order_qty"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	IsAcknowledged      bool       `json:"is_acknowledged" db:"is_acknowledged"`
	AcknowledgedBy      *int64     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt      *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// AlertView is the per-product alert evaluation returned to callers of the
// alert engine, independent of whether a row was created or escalated.
type AlertView struct {
	ProductID           int64            `json:"product_id"`
	ProductName         string           `json:"product_name"`
	Category            string           `json:"category"`
	CurrentStock        int              `json:"current_stock"`
	Severity            Severity         `json:"severity"`
	SeverityRank        int              `json:"severity_rank"`
	Shortage            float64          `json:"shortage"`
	RecommendedOrderQty int              `json:"recommended_order_qty"`
	HorizonsAffected    []string         `json:"horizons_affected"`
	Forecasts           HorizonForecasts `json:"forecasts"`
	ThresholdBased      bool             `json:"threshold_based"`
	Message             string           `json:"message"`
}

// HorizonForecasts holds the latest point estimates per alert horizon;
// nil means no forecast exists for that horizon.
type HorizonForecasts struct {
	OneDay    *int `json:"1_day"`
	SevenDay  *int `json:"7_day"`
	ThirtyDay *int `json:"30_day"`
}

// HorizonAccuracy is the MAPE-derived accuracy report per horizon.
// Zero values mean "no reconciled data in the window", not perfect error.
type HorizonAccuracy struct {
	OneDay    float64 `json:"1_day"`
	SevenDay  float64 `json:"7_day"`
	ThirtyDay float64 `json:"30_day"`
}

// Day truncates a timestamp to midnight UTC. All forecast, snapshot and
// retrain bookkeeping is keyed on calendar days, never instants.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// HorizonLabel classifies the gap between generation and target date into
// the snapshot horizon buckets.
func HorizonLabel(gapDays int) string {
	switch {
	case gapDays <= 1:
		return HorizonOneDay
	case gapDays <= 7:
		return HorizonSevenDay
	case gapDays <= 30:
		return HorizonThirtyDay
	default:
		return fmt.Sprintf("%d-day", gapDays)
	}
}
