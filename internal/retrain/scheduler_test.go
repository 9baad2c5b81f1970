package retrain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository/memory"
	"github.com/andresuchdata/restockcast/internal/snapshot"
)

func seedDailySales(sales *memory.SalesRepository, productID int64, start time.Time, days int) {
	points := make([]domain.SalesPoint, days)
	for i := range points {
		points[i] = domain.SalesPoint{
			Date:     start.AddDate(0, 0, i),
			Quantity: 10 + float64(i%7),
		}
	}
	sales.SetSeries(productID, points)
}

func newTestScheduler() (*Scheduler, *memory.SalesRepository, *memory.ForecastRepository, *memory.SnapshotRepository) {
	sales := memory.NewSalesRepository()
	forecasts := memory.NewForecastRepository()
	snapshots := memory.NewSnapshotRepository()
	recorder := snapshot.NewRecorder(snapshots, sales)
	return NewScheduler(sales, forecasts, recorder), sales, forecasts, snapshots
}

func TestRollingRetrainWalksForward(t *testing.T) {
	sched, sales, forecasts, snapshots := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 100)

	opts := Options{FoundationDaysSmall: 90, HorizonDays: 7, StepDays: 1}
	res, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)

	// First cutoff lands on day 90, walk runs through day 100.
	assert.Equal(t, 11, res.StepsRun)
	assert.Equal(t, 0, res.StepsSkipped)
	assert.Equal(t, 11*7, res.ForecastsWritten)
	assert.Equal(t, res.ForecastsWritten, forecasts.Count())
	assert.NotEmpty(t, snapshots.All())

	lastGen, err := forecasts.LastGeneratedAt(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, lastGen)
	assert.Equal(t, domain.Day(start.AddDate(0, 0, 99)), *lastGen)
}

func TestRollingRetrainResumeIsIdempotent(t *testing.T) {
	sched, sales, forecasts, _ := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 95)

	opts := Options{FoundationDaysSmall: 90, HorizonDays: 7, StepDays: 1}
	first, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	require.Greater(t, first.ForecastsWritten, 0)
	countAfterFirst := forecasts.Count()

	// Re-running with no new sales resumes past the end of the data.
	second, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.StepsRun)
	assert.Equal(t, 0, second.ForecastsWritten)
	assert.Equal(t, countAfterFirst, forecasts.Count())
}

func TestRollingRetrainResumesAfterNewSales(t *testing.T) {
	sched, sales, forecasts, _ := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 92)

	opts := Options{FoundationDaysSmall: 90, HorizonDays: 5, StepDays: 1}
	_, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	countAfterFirst := forecasts.Count()

	// Three more days of sales arrive.
	seedDailySales(sales, 1, start, 95)
	res, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.StepsRun)
	assert.Equal(t, countAfterFirst+3*5, forecasts.Count())
}

func TestRollingRetrainShortHistoryProducesNothing(t *testing.T) {
	sched, sales, _, _ := newTestScheduler()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 30)

	res, err := sched.RollingRetrain(context.Background(), 1, Options{FoundationDaysSmall: 90, HorizonDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, res.StepsRun)
	assert.Equal(t, 0, res.ForecastsWritten)
}

func TestRollingRetrainNoSalesAtAll(t *testing.T) {
	sched, _, _, _ := newTestScheduler()

	res, err := sched.RollingRetrain(context.Background(), 42, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.StepsRun)
}

func TestRollingRetrainFoundationSelection(t *testing.T) {
	t.Run("long history uses the large foundation", func(t *testing.T) {
		sched, sales, _, _ := newTestScheduler()
		start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		seedDailySales(sales, 1, start, 400)

		res, err := sched.RollingRetrain(context.Background(), 1, Options{HorizonDays: 3})
		require.NoError(t, err)
		// Foundation covers the first 365 days, the walk runs the rest.
		assert.Equal(t, 36, res.StepsRun)
	})

	t.Run("exactly a year of history runs one step", func(t *testing.T) {
		sched, sales, _, _ := newTestScheduler()
		start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		seedDailySales(sales, 1, start, 365)

		res, err := sched.RollingRetrain(context.Background(), 1, Options{HorizonDays: 3})
		require.NoError(t, err)
		assert.Equal(t, 1, res.StepsRun)
	})

	t.Run("a capped walk sizes the foundation from the cap", func(t *testing.T) {
		sched, sales, _, _ := newTestScheduler()
		start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		seedDailySales(sales, 1, start, 400)

		// Only 100 days are in range, so the 90-day foundation applies
		// even though the full history spans more than a year.
		upTo := domain.Day(start.AddDate(0, 0, 99))
		res, err := sched.RollingRetrain(context.Background(), 1, Options{HorizonDays: 3, UpTo: &upTo})
		require.NoError(t, err)
		assert.Equal(t, 11, res.StepsRun)
	})
}

func TestRollingRetrainUpToBeyondLastSale(t *testing.T) {
	sched, sales, forecasts, _ := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 95)

	// An explicit cap past the last sale keeps walking on static training
	// data instead of stopping at the series end.
	upTo := domain.Day(start.AddDate(0, 0, 97))
	opts := Options{FoundationDaysSmall: 90, HorizonDays: 3, StepDays: 1, UpTo: &upTo}
	res, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, 9, res.StepsRun)

	lastGen, err := forecasts.LastGeneratedAt(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, lastGen)
	assert.Equal(t, upTo, *lastGen)
}

func TestRollingRetrainHonorsUpTo(t *testing.T) {
	sched, sales, _, _ := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 100)

	upTo := domain.Day(start.AddDate(0, 0, 91)) // two cutoffs: offsets 89 and 91
	opts := Options{FoundationDaysSmall: 90, HorizonDays: 3, StepDays: 2, UpTo: &upTo}
	res, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.StepsRun)
}

func TestRollingRetrainSnapshotHorizonLabels(t *testing.T) {
	sched, sales, _, snapshots := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 90)

	opts := Options{FoundationDaysSmall: 90, HorizonDays: 10, StepDays: 1}
	_, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)

	labels := make(map[string]bool)
	for _, s := range snapshots.All() {
		labels[s.ForecastHorizon] = true
	}
	assert.True(t, labels[domain.HorizonOneDay])
	assert.True(t, labels[domain.HorizonSevenDay])
	assert.True(t, labels[domain.HorizonThirtyDay])
}

// failingForecastRepository drops whole step batches to simulate a store
// outage mid-walk.
type failingForecastRepository struct {
	*memory.ForecastRepository
	failures int
}

func (r *failingForecastRepository) InsertBatch(ctx context.Context, fs []*domain.Forecast) (int, error) {
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("connection reset by peer")
	}
	return r.ForecastRepository.InsertBatch(ctx, fs)
}

func TestRollingRetrainFailedStepLeavesNoPartialRows(t *testing.T) {
	sales := memory.NewSalesRepository()
	forecasts := &failingForecastRepository{ForecastRepository: memory.NewForecastRepository(), failures: 1}
	snapshots := memory.NewSnapshotRepository()
	sched := NewScheduler(sales, forecasts, snapshot.NewRecorder(snapshots, sales))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 92)

	opts := Options{FoundationDaysSmall: 90, HorizonDays: 5, StepDays: 1}
	res, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.StepsRun)
	assert.Equal(t, 1, res.StepsSkipped)
	assert.Equal(t, 2*5, res.ForecastsWritten)

	// The failed first step must not leave any rows under its cutoff.
	failedCutoff := domain.Day(start.AddDate(0, 0, 89))
	for _, f := range forecasts.All() {
		require.NotNil(t, f.GeneratedAt)
		assert.False(t, f.GeneratedAt.Equal(failedCutoff), "partial rows left by a failed step")
	}
}

func TestGenerateMultiHorizon(t *testing.T) {
	sched, sales, forecasts, snapshots := newTestScheduler()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 100) // ends 2024-04-10
	sched.now = func() time.Time { return time.Date(2024, 4, 11, 10, 0, 0, 0, time.UTC) }

	written, err := sched.GenerateMultiHorizon(context.Background(), 1, 30)
	require.NoError(t, err)

	// 30 dailies from Monday 2024-04-08 plus five weekly aggregates.
	assert.Equal(t, 35, written)
	require.Equal(t, 35, forecasts.Count())

	weekStart := time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC)
	var dailySum, firstWeekQty int
	weekly := 0
	for _, f := range forecasts.All() {
		switch f.AggregationLevel {
		case domain.AggregationDaily:
			assert.Nil(t, f.GeneratedAt, "live forecasts carry no generation cutoff")
			if f.ForecastDate.Before(weekStart.AddDate(0, 0, 7)) {
				dailySum += f.PredictedQuantity
			}
		case domain.AggregationWeekly:
			weekly++
			assert.Equal(t, "AGGREGATED_DAILY", f.ModelUsed)
			if f.ForecastDate.Equal(weekStart) {
				firstWeekQty = f.PredictedQuantity
				assert.Equal(t, "2024-W15", f.PeriodKey)
			}
		}
	}
	assert.Equal(t, 5, weekly)
	assert.Equal(t, dailySum, firstWeekQty, "weekly aggregate sums its daily predictions")

	labels := make(map[string]bool)
	for _, s := range snapshots.All() {
		labels[s.ForecastHorizon] = true
	}
	assert.True(t, labels[domain.HorizonOneDay])
	assert.True(t, labels[domain.HorizonThirtyDay])

	// Regenerating replaces the live set instead of stacking a second one.
	_, err = sched.GenerateMultiHorizon(context.Background(), 1, 30)
	require.NoError(t, err)
	assert.Equal(t, 35, forecasts.Count())
}

func TestGenerateMultiHorizonKeepsRetrainCheckpoint(t *testing.T) {
	sched, sales, forecasts, _ := newTestScheduler()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 100)
	sched.now = func() time.Time { return time.Date(2024, 4, 11, 0, 0, 0, 0, time.UTC) }

	opts := Options{FoundationDaysSmall: 90, HorizonDays: 7, StepDays: 1}
	_, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	lastGen, err := forecasts.LastGeneratedAt(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, lastGen)

	_, err = sched.GenerateMultiHorizon(context.Background(), 1, 30)
	require.NoError(t, err)

	// Live rows move neither the checkpoint nor the backtest ledger.
	after, err := forecasts.LastGeneratedAt(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, *lastGen, *after)

	res, err := sched.RollingRetrain(context.Background(), 1, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.StepsRun)
}

func TestRollingRetrainAll(t *testing.T) {
	sched, sales, _, _ := newTestScheduler()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDailySales(sales, 1, start, 95)
	seedDailySales(sales, 2, start, 10) // too short, still succeeds with zero steps

	results, err := sched.RollingRetrainAll(context.Background(), Options{FoundationDaysSmall: 90, HorizonDays: 3})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Greater(t, results[0].StepsRun, 0)
	assert.Equal(t, 0, results[1].StepsRun)
}
