// internal/snapshot/recorder.go
package snapshot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

// Recorder writes forecast snapshots and reconciles them with actual sales
// once the target date has passed.
type Recorder struct {
	snapshots repository.SnapshotRepository
	sales     repository.SalesRepository
}

func NewRecorder(snapshots repository.SnapshotRepository, sales repository.SalesRepository) *Recorder {
	return &Recorder{snapshots: snapshots, sales: sales}
}

// Record upserts one snapshot for (product, forecast date, horizon).
// Re-recording the same key replaces the predicted fields, so the latest
// training run wins, but never disturbs actuals already reconciled.
func (r *Recorder) Record(ctx context.Context, s *domain.ForecastSnapshot) error {
	s.ForecastDate = domain.Day(s.ForecastDate)
	if s.SnapshotCreatedAt.IsZero() {
		s.SnapshotCreatedAt = time.Now().UTC()
	}
	if err := r.snapshots.Upsert(ctx, s); err != nil {
		return fmt.Errorf("record snapshot for product %d on %s: %w",
			s.ProductID, s.ForecastDate.Format("2006-01-02"), err)
	}
	return nil
}

// ReconcileActual fills the actual quantity and accuracy fields on every
// snapshot of a product for one target date. Snapshots that already carry
// an actual are left alone, so re-running a day is a no-op. Returns the
// number of snapshots updated.
func (r *Recorder) ReconcileActual(ctx context.Context, productID int64, day time.Time) (int, error) {
	day = domain.Day(day)

	actual, hasSales, err := r.sales.SumQuantityOn(ctx, productID, day)
	if err != nil {
		return 0, fmt.Errorf("sum sales for product %d on %s: %w", productID, day.Format("2006-01-02"), err)
	}
	if !hasSales {
		actual = 0
	}

	pending, err := r.snapshots.Unreconciled(ctx, productID, day)
	if err != nil {
		return 0, fmt.Errorf("load unreconciled snapshots: %w", err)
	}

	updated := 0
	for _, s := range pending {
		accuracy, errorPct := scoreSnapshot(s.PredictedQuantity, actual)
		if err := r.snapshots.SetActual(ctx, s.ID, actual, accuracy, errorPct); err != nil {
			logger.Log.Warn().Err(err).
				Int64("snapshot_id", s.ID).
				Int64("product_id", productID).
				Msg("failed to reconcile snapshot")
			continue
		}
		updated++
	}

	if updated > 0 {
		logger.Log.Debug().
			Int64("product_id", productID).
			Str("date", day.Format("2006-01-02")).
			Float64("actual", actual).
			Int("updated", updated).
			Msg("reconciled forecast snapshots")
	}
	return updated, nil
}

// scoreSnapshot derives accuracy and error percentage from a prediction and
// the observed quantity. A zero-sales day scores a nonzero prediction as a
// total miss and a zero prediction as a perfect hit.
func scoreSnapshot(predicted, actual float64) (accuracy, errorPct float64) {
	switch {
	case actual > 0:
		relErr := math.Abs(predicted-actual) / actual
		accuracy = (1 - relErr) * 100
		errorPct = relErr * 100
	case predicted > 0:
		accuracy = 0
		errorPct = 100
	default:
		accuracy = 100
		errorPct = 0
	}
	return accuracy, errorPct
}
