// internal/repository/repositories.go
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
)

// SalesRepository reads aggregated daily sales. The forecasting core never
// writes sales; ingestion lives elsewhere.
type SalesRepository interface {
	// DailySeries returns the date-ordered daily quantity series for a
	// product. A non-nil cutoff caps the series at sales strictly before
	// the day after cutoff, so backtests never see the future.
	DailySeries(ctx context.Context, productID int64, cutoff *time.Time) ([]domain.SalesPoint, error)

	// SaleDateRange returns the first and last sale dates for a product.
	// ok is false when the product has no sales at all.
	SaleDateRange(ctx context.Context, productID int64) (first, last time.Time, ok bool, err error)

	// SumQuantityOn returns the total units sold on a calendar day, and
	// whether any sales rows exist for that day.
	SumQuantityOn(ctx context.Context, productID int64, day time.Time) (float64, bool, error)

	// ProductIDsWithSales lists every product that has at least one sale.
	ProductIDsWithSales(ctx context.Context) ([]int64, error)
}

// ForecastRepository persists point forecasts keyed by product, target date
// and generation cutoff.
type ForecastRepository interface {
	Insert(ctx context.Context, f *domain.Forecast) error

	// InsertBatch writes all rows or none of them, skipping rows whose
	// (product, forecast_date, generated_at, aggregation_level) key is
	// already taken. Returns the number of rows actually inserted. A
	// retrain step persists through this so an interrupted step leaves
	// no partial rows behind its generation cutoff.
	InsertBatch(ctx context.Context, fs []*domain.Forecast) (int, error)

	// ReplaceLive atomically deletes a product's live forecasts (rows
	// without a generation cutoff) dated from onward and inserts the
	// replacement set. Returns the number of rows inserted.
	ReplaceLive(ctx context.Context, productID int64, from time.Time, fs []*domain.Forecast) (int, error)

	// Exists reports whether a forecast row already exists for the key,
	// making retrain walks idempotent.
	Exists(ctx context.Context, productID int64, forecastDate, generatedAt time.Time, aggregationLevel string) (bool, error)

	// LastGeneratedAt returns the most recent generation cutoff recorded
	// for a product, nil when the product has never been trained.
	LastGeneratedAt(ctx context.Context, productID int64) (*time.Time, error)

	// LatestForTargetDate returns the newest forecast whose target is
	// exactly targetDate, preferring the most recently created row.
	// Returns domain.ErrNotFound when no forecast targets that date.
	LatestForTargetDate(ctx context.Context, productID int64, targetDate time.Time) (*domain.Forecast, error)

	// DeleteFrom removes forecasts generated at or after from, used when
	// a walk must be re-run over corrected sales data.
	DeleteFrom(ctx context.Context, productID int64, from time.Time) (int64, error)
}

// SnapshotRepository persists forecast snapshots and their reconciliation.
type SnapshotRepository interface {
	// Upsert inserts a snapshot or, when one exists for the same
	// (product, forecast date, horizon), replaces its predicted fields
	// while leaving any recorded actuals untouched.
	Upsert(ctx context.Context, s *domain.ForecastSnapshot) error

	// Unreconciled lists snapshots for a product and target date that do
	// not yet have an actual quantity.
	Unreconciled(ctx context.Context, productID int64, forecastDate time.Time) ([]domain.ForecastSnapshot, error)

	// SetActual records the actual quantity and derived accuracy fields
	// on a snapshot.
	SetActual(ctx context.Context, snapshotID int64, actual, accuracy, errorPct float64) error

	// ReconciledInWindow lists reconciled snapshots at a horizon whose
	// forecast date falls inside [from, to].
	ReconciledInWindow(ctx context.Context, horizon string, from, to time.Time) ([]domain.ForecastSnapshot, error)

	// ReconciledForProduct is ReconciledInWindow scoped to one product,
	// across all horizons.
	ReconciledForProduct(ctx context.Context, productID int64, from, to time.Time) ([]domain.ForecastSnapshot, error)
}

// AlertRepository persists restock alerts. Create must fail with a
// PersistenceConflictError when an active unacknowledged alert of the same
// type already exists for the product.
type AlertRepository interface {
	Create(ctx context.Context, a *domain.Alert) error

	// OpenUnacknowledged returns the active, unacknowledged alert of the
	// given type for a product, or domain.ErrNotFound.
	OpenUnacknowledged(ctx context.Context, productID int64, alertType string) (*domain.Alert, error)

	// Escalate raises an existing alert to a higher severity with a new
	// message and recommendation.
	Escalate(ctx context.Context, alertID int64, severity domain.Severity, message string, recommendedQty int) error

	Acknowledge(ctx context.Context, alertID, userID int64) error
	Resolve(ctx context.Context, alertID int64) error

	// Active lists all active alerts, newest first.
	Active(ctx context.Context) ([]domain.Alert, error)
}

// ProductRepository reads the inventory entities alerts are evaluated over.
type ProductRepository interface {
	Get(ctx context.Context, productID int64) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}
