// internal/snapshot/evaluator.go
package snapshot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
)

// Evaluator computes MAPE-based accuracy over reconciled snapshots.
type Evaluator struct {
	snapshots repository.SnapshotRepository
	now       func() time.Time
}

func NewEvaluator(snapshots repository.SnapshotRepository) *Evaluator {
	return &Evaluator{snapshots: snapshots, now: time.Now}
}

// MultiHorizonAccuracy reports accuracy for the 1-day, 7-day and 30-day
// horizons over the last daysBack days. The 30-day horizon is always
// evaluated over at most 30 days regardless of a larger window. A horizon
// with no reconciled data reports 0.
func (e *Evaluator) MultiHorizonAccuracy(ctx context.Context, daysBack int) (domain.HorizonAccuracy, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	end := domain.Day(e.now().UTC())

	oneDay, err := e.horizonAccuracy(ctx, domain.HorizonOneDay, end, daysBack)
	if err != nil {
		return domain.HorizonAccuracy{}, err
	}
	sevenDay, err := e.horizonAccuracy(ctx, domain.HorizonSevenDay, end, daysBack)
	if err != nil {
		return domain.HorizonAccuracy{}, err
	}
	thirtyWindow := daysBack
	if thirtyWindow > 30 {
		thirtyWindow = 30
	}
	thirtyDay, err := e.horizonAccuracy(ctx, domain.HorizonThirtyDay, end, thirtyWindow)
	if err != nil {
		return domain.HorizonAccuracy{}, err
	}

	return domain.HorizonAccuracy{
		OneDay:    oneDay,
		SevenDay:  sevenDay,
		ThirtyDay: thirtyDay,
	}, nil
}

func (e *Evaluator) horizonAccuracy(ctx context.Context, horizon string, end time.Time, daysBack int) (float64, error) {
	from := end.AddDate(0, 0, -daysBack)
	snaps, err := e.snapshots.ReconciledInWindow(ctx, horizon, from, end)
	if err != nil {
		return 0, fmt.Errorf("load %s snapshots: %w", horizon, err)
	}
	return mapeAccuracy(snaps), nil
}

// ProductAccuracy reports one product's accuracy over the last daysBack
// days, across all horizons.
func (e *Evaluator) ProductAccuracy(ctx context.Context, productID int64, daysBack int) (float64, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	end := domain.Day(e.now().UTC())
	from := end.AddDate(0, 0, -daysBack)

	snaps, err := e.snapshots.ReconciledForProduct(ctx, productID, from, end)
	if err != nil {
		return 0, fmt.Errorf("load product %d snapshots: %w", productID, err)
	}
	return mapeAccuracy(snaps), nil
}

// mapeAccuracy converts mean absolute percentage error into a 0..100
// accuracy score. Only snapshots with a positive actual contribute; zero
// actuals would make the percentage error undefined. No usable data
// scores 0, meaning unknown rather than perfect.
func mapeAccuracy(snaps []domain.ForecastSnapshot) float64 {
	var sum float64
	var n int
	for _, s := range snaps {
		if s.ActualQuantity == nil || *s.ActualQuantity <= 0 {
			continue
		}
		sum += math.Abs(s.PredictedQuantity-*s.ActualQuantity) / *s.ActualQuantity
		n++
	}
	if n == 0 {
		return 0
	}
	mape := sum / float64(n)
	return math.Max(0, 100-mape*100)
}
