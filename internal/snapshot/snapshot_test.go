package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository/memory"
)

func recordSnapshot(t *testing.T, r *Recorder, productID int64, date time.Time, predicted float64, horizon string) *domain.ForecastSnapshot {
	t.Helper()
	s := &domain.ForecastSnapshot{
		ProductID:         productID,
		ForecastDate:      date,
		PredictedQuantity: predicted,
		ModelUsed:         "ENHANCED_LINEAR_REGRESSION",
		ForecastHorizon:   horizon,
	}
	require.NoError(t, r.Record(context.Background(), s))
	return s
}

func TestRecordUpsertKeepsLatestPrediction(t *testing.T) {
	snapshots := memory.NewSnapshotRepository()
	sales := memory.NewSalesRepository()
	recorder := NewRecorder(snapshots, sales)
	date := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	recordSnapshot(t, recorder, 1, date, 15, domain.HorizonSevenDay)
	recordSnapshot(t, recorder, 1, date, 18, domain.HorizonSevenDay)

	all := snapshots.All()
	require.Len(t, all, 1)
	assert.Equal(t, 18.0, all[0].PredictedQuantity)
}

func TestReconcileActualScoring(t *testing.T) {
	tests := []struct {
		name         string
		predicted    float64
		actual       float64
		wantAccuracy float64
		wantErrorPct float64
	}{
		{"close prediction", 90, 100, 90, 10},
		{"exact prediction", 100, 100, 100, 0},
		{"overshoot on zero sales", 10, 0, 0, 100},
		{"zero on zero sales", 0, 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshots := memory.NewSnapshotRepository()
			sales := memory.NewSalesRepository()
			recorder := NewRecorder(snapshots, sales)
			date := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

			sales.SetSeries(1, []domain.SalesPoint{{Date: date, Quantity: tt.actual}})
			recordSnapshot(t, recorder, 1, date, tt.predicted, domain.HorizonOneDay)

			updated, err := recorder.ReconcileActual(context.Background(), 1, date)
			require.NoError(t, err)
			assert.Equal(t, 1, updated)

			all := snapshots.All()
			require.Len(t, all, 1)
			require.NotNil(t, all[0].ActualQuantity)
			assert.Equal(t, tt.actual, *all[0].ActualQuantity)
			assert.InDelta(t, tt.wantAccuracy, *all[0].Accuracy, 1e-9)
			assert.InDelta(t, tt.wantErrorPct, *all[0].ErrorPercentage, 1e-9)
		})
	}
}

func TestReconcileActualIsIdempotent(t *testing.T) {
	snapshots := memory.NewSnapshotRepository()
	sales := memory.NewSalesRepository()
	recorder := NewRecorder(snapshots, sales)
	date := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	sales.SetSeries(1, []domain.SalesPoint{{Date: date, Quantity: 50}})
	recordSnapshot(t, recorder, 1, date, 40, domain.HorizonOneDay)

	updated, err := recorder.ReconcileActual(context.Background(), 1, date)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	// Second pass finds nothing left to fill.
	updated, err = recorder.ReconcileActual(context.Background(), 1, date)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestReconcileActualNoSalesDayCountsAsZero(t *testing.T) {
	snapshots := memory.NewSnapshotRepository()
	sales := memory.NewSalesRepository()
	recorder := NewRecorder(snapshots, sales)
	date := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	recordSnapshot(t, recorder, 1, date, 12, domain.HorizonOneDay)

	updated, err := recorder.ReconcileActual(context.Background(), 1, date)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	all := snapshots.All()
	require.NotNil(t, all[0].ActualQuantity)
	assert.Equal(t, 0.0, *all[0].ActualQuantity)
	assert.Equal(t, 0.0, *all[0].Accuracy)
}

func seedReconciled(t *testing.T, snapshots *memory.SnapshotRepository, recorder *Recorder, sales *memory.SalesRepository, date time.Time, predicted, actual float64, horizon string) {
	t.Helper()
	sales.SetSeries(1, append(salesSeries(sales), domain.SalesPoint{Date: date, Quantity: actual}))
	recordSnapshot(t, recorder, 1, date, predicted, horizon)
	_, err := recorder.ReconcileActual(context.Background(), 1, date)
	require.NoError(t, err)
}

func salesSeries(sales *memory.SalesRepository) []domain.SalesPoint {
	points, _ := sales.DailySeries(context.Background(), 1, nil)
	return points
}

func TestMultiHorizonAccuracy(t *testing.T) {
	snapshots := memory.NewSnapshotRepository()
	sales := memory.NewSalesRepository()
	recorder := NewRecorder(snapshots, sales)
	evaluator := NewEvaluator(snapshots)

	now := time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)
	evaluator.now = func() time.Time { return now }

	// 1-day horizon: 10% error. 7-day horizon: 20% error.
	seedReconciled(t, snapshots, recorder, sales, now.AddDate(0, 0, -2), 90, 100, domain.HorizonOneDay)
	seedReconciled(t, snapshots, recorder, sales, now.AddDate(0, 0, -3), 80, 100, domain.HorizonSevenDay)

	acc, err := evaluator.MultiHorizonAccuracy(context.Background(), 30)
	require.NoError(t, err)
	assert.InDelta(t, 90, acc.OneDay, 1e-9)
	assert.InDelta(t, 80, acc.SevenDay, 1e-9)
	assert.Equal(t, 0.0, acc.ThirtyDay, "no reconciled data reports zero")
}

func TestMultiHorizonAccuracyIgnoresZeroActuals(t *testing.T) {
	snapshots := memory.NewSnapshotRepository()
	sales := memory.NewSalesRepository()
	recorder := NewRecorder(snapshots, sales)
	evaluator := NewEvaluator(snapshots)

	now := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	evaluator.now = func() time.Time { return now }

	seedReconciled(t, snapshots, recorder, sales, now.AddDate(0, 0, -1), 90, 100, domain.HorizonOneDay)
	// A zero-actual day must not drag the MAPE average.
	seedReconciled(t, snapshots, recorder, sales, now.AddDate(0, 0, -2), 5, 0, domain.HorizonOneDay)

	acc, err := evaluator.MultiHorizonAccuracy(context.Background(), 30)
	require.NoError(t, err)
	assert.InDelta(t, 90, acc.OneDay, 1e-9)
}

func TestProductAccuracy(t *testing.T) {
	snapshots := memory.NewSnapshotRepository()
	sales := memory.NewSalesRepository()
	recorder := NewRecorder(snapshots, sales)
	evaluator := NewEvaluator(snapshots)

	now := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	evaluator.now = func() time.Time { return now }

	seedReconciled(t, snapshots, recorder, sales, now.AddDate(0, 0, -1), 50, 100, domain.HorizonOneDay)

	acc, err := evaluator.ProductAccuracy(context.Background(), 1, 30)
	require.NoError(t, err)
	assert.InDelta(t, 50, acc, 1e-9)

	acc, err = evaluator.ProductAccuracy(context.Background(), 99, 30)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc)
}
